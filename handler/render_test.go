package handler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderMarkdown(t *testing.T) {
	cases := []struct {
		name     string
		in       string
		contains []string
		excludes []string
	}{
		{
			name:     "emphasis",
			in:       "Reserva **confirmada** para _Pedro_",
			contains: []string{"<strong>confirmada</strong>", "<em>Pedro</em>"},
		},
		{
			name:     "single newline is a line break",
			in:       "línea uno\nlínea dos",
			contains: []string{"línea uno<br>", "línea dos"},
		},
		{
			name:     "gfm table",
			in:       "| Salón | Fecha |\n|---|---|\n| A | 1 de enero |",
			contains: []string{"<table>", "<th>Salón</th>", "<td>1 de enero</td>"},
		},
		{
			name:     "gfm strikethrough",
			in:       "~~cancelado~~",
			contains: []string{"<del>cancelado</del>"},
		},
		{
			name:     "raw html is dropped",
			in:       "hola <script>alert(1)</script>",
			contains: []string{"hola"},
			excludes: []string{"<script>", "alert(1)</script>"},
		},
		{
			name:     "javascript links are neutralized",
			in:       "[clic](javascript:alert(1))",
			excludes: []string{"javascript:"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := string(renderMarkdown(tc.in))
			for _, s := range tc.contains {
				require.Contains(t, out, s)
			}
			for _, s := range tc.excludes {
				require.NotContains(t, out, s)
			}
		})
	}
}
