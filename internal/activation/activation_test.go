package activation

import (
	"fmt"
	"reflect"
	"testing"
)

func envFunc(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestListeners_NoEnvironment(t *testing.T) {
	t.Setenv("LISTEN_PID", "")
	t.Setenv("LISTEN_FDS", "")

	listeners, err := Listeners()
	if err != nil {
		t.Fatalf("Listeners() unexpected error: %v", err)
	}
	if listeners != nil {
		t.Errorf("expected nil listeners when no env vars set, got %v", listeners)
	}
}

func TestParseEnv(t *testing.T) {
	const pid = 4242

	tests := []struct {
		name    string
		env     map[string]string
		want    []string
		wantErr bool
	}{
		{
			name: "no environment",
			env:  map[string]string{},
		},
		{
			name: "different process",
			env:  map[string]string{"LISTEN_PID": "99999", "LISTEN_FDS": "1"},
		},
		{
			name:    "invalid pid",
			env:     map[string]string{"LISTEN_PID": "not-a-number", "LISTEN_FDS": "1"},
			wantErr: true,
		},
		{
			name:    "invalid fds",
			env:     map[string]string{"LISTEN_PID": "4242", "LISTEN_FDS": "not-a-number"},
			wantErr: true,
		},
		{
			name: "zero fds",
			env:  map[string]string{"LISTEN_PID": "4242", "LISTEN_FDS": "0"},
		},
		{
			name: "missing fds",
			env:  map[string]string{"LISTEN_PID": "4242"},
		},
		{
			name: "unnamed sockets",
			env:  map[string]string{"LISTEN_PID": "4242", "LISTEN_FDS": "2"},
			want: []string{"systemd-socket-0", "systemd-socket-1"},
		},
		{
			name: "named sockets",
			env:  map[string]string{"LISTEN_PID": "4242", "LISTEN_FDS": "2", "LISTEN_FDNAMES": "management:"},
			want: []string{"management", "systemd-socket-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseEnv(envFunc(tt.env), pid)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseEnv() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

// Example demonstrates how socket activation detection works
func ExampleListeners() {
	listeners, err := Listeners()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	if listeners == nil {
		fmt.Println("No socket activation detected")
	} else {
		fmt.Printf("Received %d systemd socket(s)\n", len(listeners))
	}
}
