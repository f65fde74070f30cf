package main

import (
	"testing"

	"github.com/james-see/tonebridge/pkg/melody"
)

func TestParseTones(t *testing.T) {
	tests := []struct {
		args    []string
		want    []melody.Note
		wantErr bool
	}{
		{[]string{"440:100", "0:50", "523:200"}, []melody.Note{{Frequency: 440, Duration: 100}, {Frequency: 0, Duration: 50}, {Frequency: 523, Duration: 200}}, false},
		{[]string{"440"}, nil, true},
		{[]string{"high:100"}, nil, true},
		{[]string{"440:70000"}, nil, true},
	}
	for _, tt := range tests {
		got, err := parseTones(tt.args)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseTones(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			continue
		}
		if len(got) != len(tt.want) {
			t.Errorf("parseTones(%v) = %v, want %v", tt.args, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("parseTones(%v)[%d] = %v, want %v", tt.args, i, got[i], tt.want[i])
			}
		}
	}
}
