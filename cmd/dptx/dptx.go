// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package dptx is the command line client of dptxd.
package dptx

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	redigo "github.com/garyburd/redigo/redis"
	"github.com/mattn/go-isatty"
	"github.com/platinasystems/atsock"
	"github.com/platinasystems/dptx/dpaux"
	"github.com/platinasystems/dptx/lang"
	"github.com/platinasystems/flags"
	"github.com/platinasystems/parms"
	"github.com/platinasystems/redis"
)

const (
	Name        = "dptx"
	DefaultPort = "dptx0"
	Daemon      = "dptxd"
)

// Fields lists the published status fields in display order.
var Fields = []string{
	"state",
	"session",
	"active",
	"rate",
	"lanes",
	"lane0.signal",
	"lane1.signal",
	"lane2.signal",
	"lane3.signal",
	"fallback",
	"fallback.step",
	"override",
	"sink.count",
	"aux.escalated",
}

type Command struct{}

func (Command) String() string { return Name }

func (Command) Usage() string {
	return `dptx [-port PORT] show
	dptx [-port PORT] watch
	dptx [-port PORT] enable | disable | retrain
	dptx [-port PORT] target PIXEL-CLOCK-KHZ [BPC [COLOR]]
	dptx [-port PORT] config RATE LANES | auto
	dptx aux [-i2c] [-mot] -addr ADDRESS (-len N | BYTE...)
	dptx edid`
}

func (Command) Apropos() lang.Alt {
	return lang.Alt{
		lang.EnUS: "show and control the displayport transmitter",
	}
}

func (Command) Main(args ...string) error {
	parm, args := parms.New(args, "-port")
	port := parm.ByName["-port"]
	if len(port) == 0 {
		port = DefaultPort
	}
	if len(args) == 0 {
		args = []string{"show"}
	}
	hset := func(field string, v interface{}) error {
		_, err := redis.Hset(redis.DefaultHash, port+"."+field, v)
		return err
	}
	switch args[0] {
	case "show":
		return show(os.Stdout, port)
	case "watch":
		return watch(os.Stdout, port)
	case "enable":
		return hset("enable", "true")
	case "disable":
		return hset("enable", "false")
	case "retrain":
		return hset("retrain", "true")
	case "target":
		names := []string{"pixel-clock", "bpc", "color"}
		if len(args) < 2 || len(args) > len(names)+1 {
			return fmt.Errorf("PIXEL-CLOCK-KHZ [BPC [COLOR]]: missing")
		}
		for i, v := range args[1:] {
			if err := hset("target."+names[i], v); err != nil {
				return err
			}
		}
		return nil
	case "config":
		if len(args) < 2 {
			return fmt.Errorf("RATE LANES | auto: missing")
		}
		return hset("config", strings.Join(args[1:], " "))
	case "aux":
		req, err := ParseAux(args[1:]...)
		if err != nil {
			return err
		}
		return transfer(os.Stdout, req)
	case "edid":
		return edid(os.Stdout)
	}
	return fmt.Errorf("%s: unknown", args[0])
}

func show(w io.Writer, port string) error {
	format := "%s.%s: %s\n"
	if isatty.IsTerminal(os.Stdout.Fd()) {
		format = "%s.%-16s %s\n"
	}
	for _, field := range Fields {
		s, err := redis.Hget(redis.DefaultHash, port+"."+field)
		if err != nil {
			return err
		}
		if len(s) > 0 {
			fmt.Fprintf(w, format, port, field, s)
		}
	}
	return nil
}

func watch(w io.Writer, port string) error {
	psc, err := redis.Subscribe(redis.DefaultHash)
	if err != nil {
		return err
	}
	defer psc.Close()
	prefix := []byte(port + ".")
	for {
		switch t := psc.Receive().(type) {
		case redigo.Message:
			if bytes.HasPrefix(t.Data, prefix) {
				fmt.Fprintln(w, string(t.Data))
			}
		case error:
			return t
		}
	}
}

// ParseAux builds a request from aux subcommand arguments.
func ParseAux(args ...string) (req dpaux.Request, err error) {
	flag, args := flags.New(args, "-i2c", "-mot")
	parm, args := parms.New(args, "-addr", "-len")
	s := parm.ByName["-addr"]
	if len(s) == 0 {
		return req, fmt.Errorf("ADDRESS: missing")
	}
	addr, err := strconv.ParseUint(s, 0, 20)
	if err != nil {
		return req, fmt.Errorf("%s: %v", s, err)
	}
	req.Address = uint32(addr)
	req.Command = dpaux.NativeRead
	if flag.ByName["-i2c"] {
		req.Command = dpaux.I2CRead
		if flag.ByName["-mot"] {
			req.Command |= dpaux.MOT
		}
	}
	if n := parm.ByName["-len"]; len(n) > 0 {
		if len(args) > 0 {
			return req, fmt.Errorf("%v: unexpected", args)
		}
		if req.Size, err = strconv.Atoi(n); err != nil {
			return req, err
		}
		return req, nil
	}
	if len(args) == 0 {
		return req, fmt.Errorf("-len or BYTE...: missing")
	}
	req.Command &^= 1
	for _, arg := range args {
		v, err := strconv.ParseUint(arg, 0, 8)
		if err != nil {
			return req, fmt.Errorf("%s: %v", arg, err)
		}
		req.Data = append(req.Data, byte(v))
	}
	return req, nil
}

func transfer(w io.Writer, req dpaux.Request) error {
	cl, err := atsock.NewRpcClient(Daemon)
	if err != nil {
		return err
	}
	defer cl.Close()
	var reply dpaux.Reply
	if err = cl.Call("Info.Aux", req, &reply); err != nil {
		return err
	}
	fmt.Fprintln(w, reply.Code)
	if len(reply.Data) > 0 {
		fmt.Fprint(w, hex.Dump(reply.Data))
	}
	return nil
}

func edid(w io.Writer) error {
	cl, err := atsock.NewRpcClient(Daemon)
	if err != nil {
		return err
	}
	defer cl.Close()
	var b []byte
	if err = cl.Call("Info.EDID", struct{}{}, &b); err != nil {
		return err
	}
	fmt.Fprint(w, hex.Dump(b))
	return nil
}
