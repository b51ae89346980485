// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package board

import (
	"strconv"
	"strings"

	"github.com/platinasystems/fdt"
	"github.com/platinasystems/gpio"
)

// Pins fills gpio.Pins with the named pins of every gpio controller in
// the tree so that a hot-plug pin can be found by name.
func Pins(t *fdt.Tree) {
	if gpio.Aliases == nil {
		gpio.Aliases = make(gpio.GpioAliasMap)
	}
	if gpio.Pins == nil {
		gpio.Pins = make(gpio.PinMap)
	}
	t.MatchNode("aliases", gatherAliases)
	t.EachProperty("gpio-controller", "", gatherPins)
}

// gatherAliases maps bank names to controller node names.
func gatherAliases(n *fdt.Node) {
	for p, v := range n.Properties {
		if !strings.Contains(p, "gpio") {
			continue
		}
		path := strings.Split(strings.TrimRight(string(v), "\x00"), "/")
		gpio.Aliases[p] = path[len(path)-1]
	}
}

// gatherPins adds each "name@index" child of a controller with a mode
// property.
func gatherPins(n *fdt.Node, _, _ string) {
	for bank, alias := range gpio.Aliases {
		if alias != n.Name {
			continue
		}
		for _, c := range n.Children {
			var mode string
			for p := range c.Properties {
				switch p {
				case "output-high", "output-low", "input":
					mode = p
				}
			}
			at := strings.Split(c.Name, "@")
			if mode == "" || len(at) != 2 {
				continue
			}
			i, err := strconv.Atoi(at[1])
			if err != nil {
				continue
			}
			gpio.Pins[at[0]] = gpio.GpioPinMode[mode] |
				gpio.GpioBankToBase[bank] | gpio.Pin(i)
		}
	}
}
