package x_log

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
)

//
// ---------- IBM Carbon Colors ----------

const (
	ColorTeal40    = "#3ddbd9"
	ColorBlue60    = "#4589ff"
	ColorBlue40    = "#78a9ff"
	ColorBlue70    = "#0043ce"
	ColorBlueBase  = "#0f62fe"
	ColorRed60     = "#da1e28"
	ColorRedStrong = "#ff0000"
	ColorOrange40  = "#ff832b"
	ColorGray60    = "#8d8d8d"
	ColorGray10    = "#f4f4f4"
)

//
// ---------- Styles Definition ----------

// Styles defines the formatting styles used for console output.
type Styles struct {
	Out               io.Writer
	Timestamp         lipgloss.Style
	Keys              map[string]lipgloss.Style
	Values            map[string]lipgloss.Style
	DefaultKeyStyle   lipgloss.Style
	DefaultValueStyle lipgloss.Style
}

// DefaultStylesByName returns a theme by name ("dark", "light").
func DefaultStylesByName(name string) *Styles {
	switch strings.ToLower(name) {
	case "light":
		return DefaultStylesLight()
	default:
		return DefaultStylesDark()
	}
}

//
// ---------- Console Formatter ----------

// ConsoleWriterWithStyles builds a zerolog.ConsoleWriter with styles.
func ConsoleWriterWithStyles(styles *Styles) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        styles.Out,
		TimeFormat: "01-02 15:04:05",

		FormatLevel: func(i any) string {
			lvl := strings.ToLower(fmt.Sprint(i))
			var color string

			switch lvl {
			case "debug":
				color = ColorTeal40
			case "info":
				color = ColorBlue60
			case "warn":
				color = ColorOrange40
			case "error":
				color = ColorRed60
			case "fatal":
				color = ColorRedStrong
			default:
				color = ColorGray60
			}

			label := lvl
			if len(label) > 3 {
				label = label[:3]
			}
			return lipgloss.NewStyle().
				Foreground(lipgloss.Color("#ffffff")).
				Background(lipgloss.Color(color)).
				Padding(0, 1).
				Render(strings.ToUpper(label))
		},

		FormatTimestamp: func(i any) string {
			return styles.Timestamp.Render(fmt.Sprintf("[%s]", i))
		},

		FormatFieldName: func(i any) string {
			key := fmt.Sprint(i)
			style, ok := styles.Keys[key]
			if !ok {
				style = styles.DefaultKeyStyle
			}
			eqStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray60))
			return style.Render(key) + eqStyle.Render("=")
		},

		FormatMessage: func(i any) string {
			return lipgloss.NewStyle().
				Foreground(lipgloss.Color(ColorGray10)).
				Render(fmt.Sprint(i))
		},
	}
}

//
// ---------- Dark Theme ----------

func DefaultStylesDark() *Styles {
	return &Styles{
		Timestamp: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorGray60)).
			Width(16),

		DefaultKeyStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorBlue40)),

		DefaultValueStyle: lipgloss.NewStyle(),

		Keys: map[string]lipgloss.Style{
			"service": lipgloss.NewStyle().Foreground(lipgloss.Color(ColorBlue40)),
			"unit":    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorBlue40)),
			"subject": lipgloss.NewStyle().Foreground(lipgloss.Color(ColorBlue40)),
			"signal":  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorBlue40)),
			"trigger": lipgloss.NewStyle().Foreground(lipgloss.Color(ColorBlue40)),
			"command": lipgloss.NewStyle().Foreground(lipgloss.Color(ColorBlue40)),
			"err":     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed60)),
		},

		Values: map[string]lipgloss.Style{
			"service": lipgloss.NewStyle().Bold(true),
			"unit":    lipgloss.NewStyle().Bold(true),
			"err":     lipgloss.NewStyle().Bold(true),
		},
	}
}

//
// ---------- Light Theme ----------

func DefaultStylesLight() *Styles {
	return &Styles{
		Timestamp: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorGray60)).
			Width(16),

		DefaultKeyStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorBlueBase)),

		DefaultValueStyle: lipgloss.NewStyle(),

		Keys: map[string]lipgloss.Style{
			"service": lipgloss.NewStyle().Foreground(lipgloss.Color(ColorBlueBase)),
			"unit":    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorBlueBase)),
			"subject": lipgloss.NewStyle().Foreground(lipgloss.Color(ColorBlueBase)),
			"signal":  lipgloss.NewStyle().Foreground(lipgloss.Color(ColorBlueBase)),
			"trigger": lipgloss.NewStyle().Foreground(lipgloss.Color(ColorBlueBase)),
			"command": lipgloss.NewStyle().Foreground(lipgloss.Color(ColorBlueBase)),
			"err":     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed60)),
		},

		Values: map[string]lipgloss.Style{
			"service": lipgloss.NewStyle().Bold(true),
			"unit":    lipgloss.NewStyle().Bold(true),
			"err":     lipgloss.NewStyle().Bold(true),
		},
	}
}
