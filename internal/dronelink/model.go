package dronelink

import (
	"errors"
	"fmt"
	"strings"

	"DroneLink-Apps/internal/core/network"
)

var (
	SensorKey    = network.MustKeyExpr("drone/sensor")
	OperationKey = network.MustKeyExpr("joystick/operation")
)

var (
	ErrInvalidRole      = errors.New("invalid role")
	ErrInvalidOperation = errors.New("invalid operation")
)

// Role is the part a node plays for its whole session.
type Role uint8

const (
	RoleNone Role = iota
	RoleDrone
	RoleJoystick
)

func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return RoleNone, nil
	case "drone":
		return RoleDrone, nil
	case "joystick":
		return RoleJoystick, nil
	default:
		return RoleNone, fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

func (r Role) String() string {
	switch r {
	case RoleNone:
		return "none"
	case RoleDrone:
		return "drone"
	case RoleJoystick:
		return "joystick"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

func (r Role) MarshalText() ([]byte, error) {
	switch r {
	case RoleNone, RoleDrone, RoleJoystick:
		return []byte(r.String()), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidRole, uint8(r))
	}
}

func (r *Role) UnmarshalText(b []byte) error {
	v, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// Operation is a directional command sent from joystick to drone.
type Operation uint8

const (
	OpUp Operation = iota + 1
	OpDown
	OpLeft
	OpRight
)

// Operations lists every valid command in display order.
var Operations = []Operation{OpUp, OpDown, OpLeft, OpRight}

func ParseOperation(s string) (Operation, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "UP":
		return OpUp, nil
	case "DOWN":
		return OpDown, nil
	case "LEFT":
		return OpLeft, nil
	case "RIGHT":
		return OpRight, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidOperation, s)
	}
}

func (o Operation) Valid() bool {
	return o >= OpUp && o <= OpRight
}

// String returns the wire token.
func (o Operation) String() string {
	switch o {
	case OpUp:
		return "UP"
	case OpDown:
		return "DOWN"
	case OpLeft:
		return "LEFT"
	case OpRight:
		return "RIGHT"
	default:
		return fmt.Sprintf("operation(%d)", uint8(o))
	}
}

func (o Operation) MarshalText() ([]byte, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOperation, uint8(o))
	}
	return []byte(o.String()), nil
}

func (o *Operation) UnmarshalText(b []byte) error {
	v, err := ParseOperation(string(b))
	if err != nil {
		return err
	}
	*o = v
	return nil
}
