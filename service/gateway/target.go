package gateway

import (
	"PPKitchen/service/topic"
	"PPKitchen/tools/errs"
)

// TargetKind selects how a Target picks connections.
type TargetKind string

const (
	TargetBroadcast   TargetKind = "broadcast"
	TargetUser        TargetKind = "user"
	TargetTopic       TargetKind = "topic"
	TargetDeviceClass TargetKind = "device_class"
)

// Target is a targeting rule for Dispatch.
type Target struct {
	Kind   TargetKind
	UserID string
	Topic  topic.Topic
	Device DeviceClass
}

func Broadcast() Target                  { return Target{Kind: TargetBroadcast} }
func ByUser(userID string) Target        { return Target{Kind: TargetUser, UserID: userID} }
func ByTopic(t topic.Topic) Target       { return Target{Kind: TargetTopic, Topic: t} }
func ByDeviceClass(d DeviceClass) Target { return Target{Kind: TargetDeviceClass, Device: d} }

// ParseTarget builds a Target from its wire form (kind plus a single value).
func ParseTarget(kind, value string) (Target, error) {
	switch TargetKind(kind) {
	case TargetBroadcast:
		return Broadcast(), nil
	case TargetUser:
		t := ByUser(value)
		return t, t.Validate()
	case TargetTopic:
		tp, err := topic.Parse(value, "")
		if err != nil {
			return Target{}, errs.ErrInvalidTarget.WrapMsg(err.Error(), "kind", kind)
		}
		return ByTopic(tp), nil
	case TargetDeviceClass:
		d, ok := ParseDeviceClass(value)
		if !ok {
			return Target{}, errs.ErrInvalidTarget.WrapMsg("unknown device class", "value", value)
		}
		return ByDeviceClass(d), nil
	}
	return Target{}, errs.ErrInvalidTarget.WrapMsg("unknown kind", "kind", kind)
}

func (t Target) Validate() error {
	switch t.Kind {
	case TargetBroadcast:
		return nil
	case TargetUser:
		if t.UserID == "" {
			return errs.ErrInvalidTarget.WrapMsg("empty user id")
		}
		return nil
	case TargetTopic:
		if t.Topic.Resource == "" || t.Topic.ID == "" {
			return errs.ErrInvalidTarget.WrapMsg("empty topic")
		}
		return nil
	case TargetDeviceClass:
		if t.Device == "" {
			return errs.ErrInvalidTarget.WrapMsg("empty device class")
		}
		return nil
	}
	return errs.ErrInvalidTarget.WrapMsg("unknown kind", "kind", string(t.Kind))
}

// matches reports whether c is selected. The caller holds the registry lock.
func (t Target) matches(c *Connection) bool {
	switch t.Kind {
	case TargetBroadcast:
		return true
	case TargetUser:
		return c.principal.UserID == t.UserID
	case TargetTopic:
		return c.subscribedLocked(t.Topic)
	case TargetDeviceClass:
		return c.deviceClass == t.Device
	}
	return false
}

func (t Target) String() string {
	switch t.Kind {
	case TargetUser:
		return "user:" + t.UserID
	case TargetTopic:
		return "topic:" + t.Topic.String()
	case TargetDeviceClass:
		return "device_class:" + string(t.Device)
	}
	return string(t.Kind)
}
