package dronelink

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
)

// GyroRange bounds synthetic readings to [-GyroRange, GyroRange).
const GyroRange = 5

// GyroSample is one gyroscope reading.
type GyroSample struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// gyroWire carries each component as a decimal literal inside a JSON string.
type gyroWire struct {
	X *wireFloat `json:"x"`
	Y *wireFloat `json:"y"`
	Z *wireFloat `json:"z"`
}

type wireFloat float32

func (f wireFloat) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatFloat(float64(f), 'f', -1, 32))
}

// UnmarshalJSON accepts "1.5" as well as a bare 1.5.
func (f *wireFloat) UnmarshalJSON(b []byte) error {
	raw := string(bytes.TrimSpace(b))
	if len(raw) > 0 && raw[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
	}
	v, err := strconv.ParseFloat(raw, 32)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("not a finite decimal literal: %q", raw)
	}
	*f = wireFloat(v)
	return nil
}

var errMissingComponent = errors.New("missing gyro component")

// EncodeGyro renders s as the drone/sensor payload.
func EncodeGyro(s GyroSample) ([]byte, error) {
	x, y, z := wireFloat(s.X), wireFloat(s.Y), wireFloat(s.Z)
	return json.Marshal(gyroWire{X: &x, Y: &y, Z: &z})
}

// DecodeGyro parses a drone/sensor payload. Extra fields are ignored.
func DecodeGyro(payload []byte) (GyroSample, error) {
	var w gyroWire
	if err := json.Unmarshal(payload, &w); err != nil {
		return GyroSample{}, fmt.Errorf("decode gyro: %w", err)
	}
	if w.X == nil || w.Y == nil || w.Z == nil {
		return GyroSample{}, fmt.Errorf("decode gyro: %w", errMissingComponent)
	}
	return GyroSample{X: float32(*w.X), Y: float32(*w.Y), Z: float32(*w.Z)}, nil
}

// RandomGyro draws a synthetic reading with every component in
// [-GyroRange, GyroRange).
func RandomGyro(r *rand.Rand) GyroSample {
	next := func() float32 { return r.Float32()*2*GyroRange - GyroRange }
	return GyroSample{X: next(), Y: next(), Z: next()}
}
