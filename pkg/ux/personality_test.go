// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import "testing"

func TestParsePersonalityLevel(t *testing.T) {
	tests := []struct {
		in   string
		want PersonalityLevel
	}{
		{"full", PersonalityFull},
		{"F", PersonalityFull},
		{"std", PersonalityStandard},
		{"min", PersonalityMinimal},
		{"machine", PersonalityMachine},
		{"quiet", PersonalityMachine},
		{" q ", PersonalityMachine},
		{"sparkly", PersonalityStandard},
		{"", PersonalityStandard},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParsePersonalityLevel(tt.in); got != tt.want {
				t.Errorf("ParsePersonalityLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestInitPersonality_FlagWins(t *testing.T) {
	prev := GetPersonality()
	defer SetPersonality(prev)

	t.Setenv(PersonalityEnv, "full")
	InitPersonality("minimal")

	if got := GetPersonality().Level; got != PersonalityMinimal {
		t.Errorf("Level = %v, want minimal", got)
	}
}

func TestInitPersonality_EnvOverridesDetection(t *testing.T) {
	prev := GetPersonality()
	defer SetPersonality(prev)

	t.Setenv(PersonalityEnv, "standard")
	InitPersonality("")

	if got := GetPersonality().Level; got != PersonalityStandard {
		t.Errorf("Level = %v, want standard", got)
	}
}

func TestShouldShowProgress(t *testing.T) {
	prev := GetPersonality()
	defer SetPersonality(prev)

	SetPersonalityLevel(PersonalityMachine)
	if ShouldShowProgress() {
		t.Error("machine mode should not animate")
	}
	SetPersonalityLevel(PersonalityFull)
	if !ShouldShowProgress() {
		t.Error("full mode should animate")
	}
}

func TestDefaultPersonality(t *testing.T) {
	p := DefaultPersonality()
	if p.Level != PersonalityFull || !p.ShowTips {
		t.Errorf("DefaultPersonality() = %+v", p)
	}
}
