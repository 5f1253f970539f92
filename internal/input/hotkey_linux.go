//go:build linux

package input

import "golang.design/x/hotkey"

// X11 maps Alt to Mod1 and Super to Mod4
var platformModifiers = map[string]hotkey.Modifier{
	"alt":     hotkey.Mod1,
	"option":  hotkey.Mod1,
	"cmd":     hotkey.Mod4,
	"command": hotkey.Mod4,
	"super":   hotkey.Mod4,
	"win":     hotkey.Mod4,
}
