// Package branding holds the presentation strings shown on the login and chat
// screens, loaded from an optional YAML file.
package branding

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Branding is the set of user-visible constants for one deployment.
type Branding struct {
	Title            string `yaml:"title"`
	LoginTitle       string `yaml:"login_title"`
	Subtitle         string `yaml:"subtitle"`
	DisplayName      string `yaml:"display_name"`
	Greeting         string `yaml:"greeting"`
	InputPlaceholder string `yaml:"input_placeholder"`
	SendLabel        string `yaml:"send_label"`
	SignedInNotice   string `yaml:"signed_in_notice"`
	MissingLogin     string `yaml:"missing_login_notice"`
	Lang             string `yaml:"lang"`
}

// Default returns the built-in branding.
func Default() Branding {
	return Branding{
		Title:            "Asistente La Tortuga 🐢",
		LoginTitle:       "Página de Login",
		Subtitle:         "Gestión eventos, Bienvenid@",
		DisplayName:      "Juan",
		Greeting:         "Hola. Soy el asistente de La Tortuga 🐢 ¿En qué te ayudo hoy?",
		InputPlaceholder: "Escribe tu comando o pregunta aquí (Ej: ¿Qué hay el 25 de diciembre? o Renta Salón A para Pedro el 1 de Enero)...",
		SendLabel:        "Enviar",
		SignedInNotice:   "¡Login exitoso! 🎉",
		MissingLogin:     "Error: ingresa tu email y contraseña",
		Lang:             "es",
	}
}

// Load reads a YAML file from path. An empty path yields Default.
func Load(path string) (Branding, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Branding{}, fmt.Errorf("branding: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes; fields left empty keep their defaults.
func Parse(data []byte) (Branding, error) {
	var b Branding
	if err := yaml.Unmarshal(data, &b); err != nil {
		return Branding{}, fmt.Errorf("branding: parse: %w", err)
	}
	b.applyDefaults()
	return b, nil
}

func (b *Branding) applyDefaults() {
	d := Default()
	fill := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}
	fill(&b.Title, d.Title)
	fill(&b.LoginTitle, d.LoginTitle)
	fill(&b.Subtitle, d.Subtitle)
	fill(&b.DisplayName, d.DisplayName)
	fill(&b.Greeting, d.Greeting)
	fill(&b.InputPlaceholder, d.InputPlaceholder)
	fill(&b.SendLabel, d.SendLabel)
	fill(&b.SignedInNotice, d.SignedInNotice)
	fill(&b.MissingLogin, d.MissingLogin)
	fill(&b.Lang, d.Lang)
}
