package raster

import (
	"image/color"
	"strconv"
	"strings"
)

var colorCommands = map[string]color.RGBA{
	"white":          rgb(0xFFFFFF),
	"red":            rgb(0xFF0000),
	"pink":           rgb(0xFF8080),
	"orange":         rgb(0xFFC000),
	"yellow":         rgb(0xFFFF00),
	"green":          rgb(0x00FF00),
	"cyan":           rgb(0x00FFFF),
	"blue":           rgb(0x0000FF),
	"purple":         rgb(0xC000FF),
	"black":          rgb(0x000000),
	"white2":         rgb(0xCCCC99),
	"niconicowhite":  rgb(0xCCCC99),
	"red2":           rgb(0xCC0033),
	"truered":        rgb(0xCC0033),
	"pink2":          rgb(0xFF33CC),
	"orange2":        rgb(0xFF6600),
	"passionorange":  rgb(0xFF6600),
	"yellow2":        rgb(0x999900),
	"madyellow":      rgb(0x999900),
	"green2":         rgb(0x00CC66),
	"elementalgreen": rgb(0x00CC66),
	"cyan2":          rgb(0x00CCCC),
	"blue2":          rgb(0x3399FF),
	"marinblue":      rgb(0x3399FF),
	"purple2":        rgb(0x6633CC),
	"nobleviolet":    rgb(0x6633CC),
	"black2":         rgb(0x666666),
}

// Dark colors get a light outline instead of a dark one.
var darkColorCommands = map[string]bool{
	"red": true, "blue": true, "purple": true, "black": true,
	"red2": true, "truered": true, "pink2": true, "orange2": true,
	"passionorange": true, "yellow2": true, "madyellow": true, "blue2": true,
	"marinblue": true, "purple2": true, "nobleviolet": true, "black2": true,
}

var (
	defaultColor = rgb(0xFFFFFF)
	shadowDark   = color.RGBA{A: 0xC0}
	shadowLight  = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xC0}
)

func rgb(v uint32) color.RGBA {
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xFF}
}

// commentColor picks the fill and outline colors from a comment's commands.
// Named colors and #RRGGBB are understood; the first match wins.
func commentColor(commands []string) (fill, outline color.RGBA) {
	for _, cmd := range commands {
		cmd = strings.ToLower(strings.TrimSpace(cmd))
		if c, ok := colorCommands[cmd]; ok {
			if darkColorCommands[cmd] {
				return c, shadowLight
			}
			return c, shadowDark
		}
		if len(cmd) == 7 && cmd[0] == '#' {
			if v, err := strconv.ParseUint(cmd[1:], 16, 32); err == nil {
				return rgb(uint32(v)), shadowDark
			}
		}
	}
	return defaultColor, shadowDark
}
