package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/rohankatakam/gitranker/internal/models"
	"gopkg.in/yaml.v3"
)

// success prints a green check line. color disables itself off a terminal
// and when NO_COLOR is set.
func success(format string, args ...interface{}) {
	color.Green("✓ "+format, args...)
}

func warn(format string, args ...interface{}) {
	color.Yellow("  ⚠️  "+format, args...)
}

var tierColors = map[models.Tier]*color.Color{
	models.TierChallenger: color.New(color.FgHiMagenta, color.Bold),
	models.TierMaster:     color.New(color.FgMagenta),
	models.TierDiamond:    color.New(color.FgHiCyan),
	models.TierEmerald:    color.New(color.FgGreen),
	models.TierPlatinum:   color.New(color.FgCyan),
	models.TierGold:       color.New(color.FgYellow),
	models.TierSilver:     color.New(color.FgWhite),
	models.TierBronze:     color.New(color.FgRed),
}

// tierLabel renders a tier name in its leaderboard color.
func tierLabel(t models.Tier) string {
	if c, ok := tierColors[t]; ok {
		return c.Sprint(t.String())
	}
	return t.String()
}

func printf(format string, args ...interface{}) {
	fmt.Printf(format, args...)
}

func printfTo(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, format, args...)
}

// printYAML writes v to stdout as YAML.
func printYAML(v interface{}) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	return enc.Close()
}
