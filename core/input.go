package core

import (
	"fmt"
	"strings"
)

// Buttons is a joypad bitmask indexed by libretro joypad id.
type Buttons uint16

const (
	ButtonB Buttons = 1 << iota
	ButtonY
	ButtonSelect
	ButtonStart
	ButtonUp
	ButtonDown
	ButtonLeft
	ButtonRight
	ButtonA
	ButtonX
	ButtonL
	ButtonR
)

const MaxPorts = 2

// Input is the controller snapshot applied for one frame.
type Input struct {
	Pads [MaxPorts]Buttons
}

func (b Buttons) Pressed(id uint) bool {
	return b&(1<<id) != 0
}

var buttonNames = map[string]Buttons{
	"b": ButtonB, "y": ButtonY, "select": ButtonSelect, "start": ButtonStart,
	"up": ButtonUp, "down": ButtonDown, "left": ButtonLeft, "right": ButtonRight,
	"a": ButtonA, "x": ButtonX, "l": ButtonL, "r": ButtonR,
}

// ParseButtons reads a '+'-separated list of button names such as "a+start".
func ParseButtons(s string) (Buttons, error) {
	var b Buttons
	for _, name := range strings.Split(s, "+") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		bit, ok := buttonNames[name]
		if !ok {
			return 0, fmt.Errorf("core: unknown button %q", name)
		}
		b |= bit
	}
	return b, nil
}
