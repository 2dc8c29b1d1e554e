package metric

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Metric
		wantErr bool
	}{
		{name: "canonical", input: "temperature", want: Temperature},
		{name: "upper case", input: "HUMIDITY", want: Humidity},
		{name: "csv parameter spelling", input: "ambient-csv", want: Ambient},
		{name: "padded", input: "  barometer ", want: Barometer},
		{name: "illuminance alias", input: "illuminance", want: Ambient},
		{name: "pressure alias", input: "pressure", want: Barometer},
		{name: "unknown", input: "wind", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownMetric) {
					t.Errorf("Parse(%q) error = %v, want ErrUnknownMetric", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestAllOrder(t *testing.T) {
	all := All()
	if len(all) != Count {
		t.Fatalf("len(All()) = %d, want %d", len(all), Count)
	}
	for i, m := range all {
		if int(m) != i {
			t.Errorf("All()[%d] = %v, want metric %d", i, m, i)
		}
		if m.Unit() == "" {
			t.Errorf("%v has no unit", m)
		}
	}
}

func TestInvalidMetric(t *testing.T) {
	m := Metric(17)
	if m.Valid() {
		t.Error("Metric(17).Valid() = true")
	}
	if m.String() != "metric(17)" {
		t.Errorf("String() = %q", m.String())
	}
	if _, err := m.MarshalText(); err == nil {
		t.Error("MarshalText() expected error for invalid metric")
	}
}

func TestJSONMapKeys(t *testing.T) {
	in := map[Metric]string{Temperature: "/var/log/temp.tsv", Barometer: "/var/log/baro.tsv"}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var out map[Metric]string
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if out[Temperature] != in[Temperature] || out[Barometer] != in[Barometer] {
		t.Errorf("decoded map = %v, want %v", out, in)
	}
}
