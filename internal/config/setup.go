package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

const maxSetupAttempts = 3

// RunSetupWizard walks the user through the main settings, reading answers
// from in and writing prompts to out. Empty answers keep the current value.
// The configuration is saved only when it validates.
func RunSetupWizard(cfg *Config, in io.Reader, out io.Writer) error {
	w := &wizard{reader: bufio.NewReader(in), out: out}

	fmt.Fprintln(w.out, "banprobe setup")
	fmt.Fprintln(w.out, "Press enter to keep the value shown in brackets.")

	for attempt := 1; ; attempt++ {
		w.ask(cfg)

		result := Validate(cfg)
		if result.IsValid() {
			for _, warn := range result.Warnings {
				log.Warn().Str("field", warn.Field).Msg(warn.Message)
			}
			break
		}

		fmt.Fprintln(w.out, "\nConfiguration has errors:")
		for _, e := range result.Errors {
			fmt.Fprintf(w.out, "  - [%s] %s\n", e.Field, e.Message)
		}
		if attempt >= maxSetupAttempts || !w.promptBool("Try again?", true) {
			return fmt.Errorf("configuration validation failed")
		}
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintf(w.out, "\nConfiguration saved to %s\n", cfg.Path())
	return nil
}

type wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

func (w *wizard) ask(cfg *Config) {
	cfg.mu.Lock()
	defer cfg.mu.Unlock()

	fmt.Fprintln(w.out, "\n-- Target server --")
	cfg.Probe.Host = w.promptString("Server host", cfg.Probe.Host)
	cfg.Probe.Port = w.promptInt("Server port", cfg.Probe.Port)
	cfg.Probe.TimeoutMS = w.promptInt("Response timeout (ms)", cfg.Probe.TimeoutMS)

	fmt.Fprintln(w.out, "\n-- Output --")
	cfg.Output.DebugDumpEnabled = w.promptBool("Write ban message debug file", cfg.Output.DebugDumpEnabled)

	fmt.Fprintln(w.out, "\n-- History --")
	cfg.History.Enabled = w.promptBool("Keep a history of results", cfg.History.Enabled)
	if cfg.History.Enabled {
		cfg.History.DBPath = w.promptString("Database path", cfg.History.DBPath)
		cfg.History.RetentionDays = w.promptInt("Retention (days)", cfg.History.RetentionDays)
	}

	fmt.Fprintln(w.out, "\n-- Local API --")
	cfg.API.Port = w.promptInt("API port", cfg.API.Port)

	fmt.Fprintln(w.out, "\n-- Notifications --")
	cfg.Discord.WebhookURL = w.promptString("Discord webhook URL (blank to disable)", cfg.Discord.WebhookURL)
	cfg.MQTT.Enabled = w.promptBool("Enable MQTT telemetry", cfg.MQTT.Enabled)
	if cfg.MQTT.Enabled {
		cfg.MQTT.BrokerURL = w.promptString("MQTT broker host", cfg.MQTT.BrokerURL)
		cfg.MQTT.Port = w.promptInt("MQTT broker port", cfg.MQTT.Port)
	}
}

func (w *wizard) readLine() string {
	input, _ := w.reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func (w *wizard) promptString(prompt, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(w.out, "  %s [%s]: ", prompt, defaultVal)
	} else {
		fmt.Fprintf(w.out, "  %s: ", prompt)
	}

	if input := w.readLine(); input != "" {
		return input
	}
	return defaultVal
}

func (w *wizard) promptInt(prompt string, defaultVal int) int {
	fmt.Fprintf(w.out, "  %s [%d]: ", prompt, defaultVal)

	input := w.readLine()
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil {
		fmt.Fprintf(w.out, "    Invalid number, using default: %d\n", defaultVal)
		return defaultVal
	}
	return val
}

func (w *wizard) promptBool(prompt string, defaultVal bool) bool {
	defaultStr := "no"
	if defaultVal {
		defaultStr = "yes"
	}
	fmt.Fprintf(w.out, "  %s [%s]: ", prompt, defaultStr)

	input := strings.ToLower(w.readLine())
	if input == "" {
		return defaultVal
	}
	return input == "yes" || input == "y" || input == "true" || input == "1"
}
