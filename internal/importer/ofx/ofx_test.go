package ofx

import (
	"context"
	"strings"
	"testing"
)

func TestCanParse(t *testing.T) {
	v1Header := []byte("OFXHEADER:100\nDATA:OFXSGML\nVERSION:102\n")
	v2Header := []byte(`<?xml version="1.0"?><?OFX OFXHEADER="200" VERSION="211"?>`)

	tests := []struct {
		name     string
		parser   *Parser
		filename string
		header   []byte
		want     bool
	}{
		{"v1 accepts sgml qfx", NewV1Parser(), "statement.qfx", v1Header, true},
		{"v1 accepts sgml ofx", NewV1Parser(), "statement.ofx", v1Header, true},
		{"v1 rejects xml", NewV1Parser(), "statement.ofx", v2Header, false},
		{"v1 rejects csv extension", NewV1Parser(), "statement.csv", v1Header, false},
		{"v2 accepts xml", NewV2Parser(), "statement.ofx", v2Header, true},
		{"v2 rejects sgml", NewV2Parser(), "statement.ofx", []byte("garbage"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.parser.CanParse(tt.filename, tt.header); got != tt.want {
				t.Errorf("CanParse(%q) = %v; want %v", tt.filename, got, tt.want)
			}
		})
	}
}

func TestParserNames(t *testing.T) {
	if got := NewV1Parser().Name(); got != "ofx1" {
		t.Errorf("v1 Name() = %q", got)
	}
	if got := NewV2Parser().Name(); got != "ofx2" {
		t.Errorf("v2 Name() = %q", got)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	p := NewV1Parser()
	if _, err := p.Parse(context.Background(), strings.NewReader("not an ofx file at all")); err == nil {
		t.Error("expected error for non-OFX content")
	}
}

func TestParseRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewV1Parser()
	if _, err := p.Parse(ctx, strings.NewReader("OFXHEADER:100\n")); err == nil {
		t.Error("expected error for cancelled context")
	}
}
