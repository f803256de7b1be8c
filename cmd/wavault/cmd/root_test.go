package cmd

import "testing"

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{
		"serve":   false,
		"init-db": false,
		"stats":   false,
		"status":  false,
		"version": false,
	}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestPersistentFlags(t *testing.T) {
	if rootCmd.PersistentFlags().Lookup("config") == nil {
		t.Error("--config flag missing")
	}
	if rootCmd.PersistentFlags().Lookup("verbose") == nil {
		t.Error("--verbose flag missing")
	}
}
