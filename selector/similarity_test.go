package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenOverlap(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "invoice_lookup", "invoice_lookup", 1.0},
		{"case insensitive", "Invoice_Lookup", "invoice_lookup", 1.0},
		{"containment", "compliance_check", "compliance", 1.0},
		{"containment reversed", "compliance", "compliance_check", 1.0},
		{"partial overlap", "payment_status_check", "payment_execution", 0.5},
		{"disjoint", "invoice_lookup", "server_restart", 0.0},
		{"empty", "", "invoice_lookup", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, TokenOverlap(tt.a, tt.b), 1e-9)
		})
	}
}

func TestTokenOverlap_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"payment_validation", "payment_execution"},
		{"compliance_check", "compliance"},
		{"a_b_c", "b_c_d"},
	}
	for _, p := range pairs {
		assert.Equal(t, TokenOverlap(p[0], p[1]), TokenOverlap(p[1], p[0]), "similarity must be symmetric for %v", p)
	}
}

func TestBestScore(t *testing.T) {
	caps := []string{"invoice_lookup", "payment_execution", "compliance"}
	assert.InDelta(t, 1.0, bestScore(TokenOverlap, "compliance_check", caps), 1e-9)
	assert.InDelta(t, 0.0, bestScore(TokenOverlap, "server_restart", caps), 1e-9)
	assert.InDelta(t, 0.0, bestScore(TokenOverlap, "anything", nil), 1e-9)
}
