package connect

import (
	"strings"

	"github.com/goccy/go-json"
)

// DeviceIDKind names the identifier field a device predicate matches on.
type DeviceIDKind string

const (
	DeviceChannel        DeviceIDKind = "channel"
	DeviceIOSChannel     DeviceIDKind = "ios_channel"
	DeviceAndroidChannel DeviceIDKind = "android_channel"
	DeviceAmazonChannel  DeviceIDKind = "amazon_channel"
	DeviceNamedUser      DeviceIDKind = "named_user_id"
)

// Filter is an accumulating server-side filter specification. An empty
// Filter matches every event. Values within a category are ORed, the
// categories themselves are ANDed by the service. Adding the same value
// twice is a no-op.
//
// Filter values are opaque to the client; the service validates them.
type Filter struct {
	types         []string
	deviceTypes   []string
	latency       int64
	devices       []devicePredicate
	notifications []notificationPredicate
}

type devicePredicate struct {
	kind DeviceIDKind
	id   string
}

type notificationPredicate struct {
	key string // "push_id" or "group_id"
	id  string
}

// NewFilter returns an empty filter.
func NewFilter() *Filter { return &Filter{} }

// Types restricts the stream to the given event types, such as "PUSH_BODY"
// or "OPEN". The API expects them uppercase.
func (f *Filter) Types(types ...string) {
	for _, t := range types {
		f.types = appendUnique(f.types, strings.ToUpper(t))
	}
}

// DeviceTypes restricts the stream to the given device platforms, such as
// "ios", "android", "amazon", "sms", "email", "web" or "open".
func (f *Filter) DeviceTypes(types ...string) {
	for _, t := range types {
		f.deviceTypes = appendUnique(f.deviceTypes, t)
	}
}

// Latency drops events that were more than threshold milliseconds latent,
// measured between occurrence and processing.
func (f *Filter) Latency(thresholdMS int64) {
	f.latency = thresholdMS
}

// Devices restricts the stream to events for the given device identifiers.
func (f *Filter) Devices(kind DeviceIDKind, ids ...string) {
	for _, id := range ids {
		p := devicePredicate{kind: kind, id: id}
		if !containsDevice(f.devices, p) {
			f.devices = append(f.devices, p)
		}
	}
}

// PushIDs restricts the stream to events caused by the given notifications.
func (f *Filter) PushIDs(ids ...string) {
	for _, id := range ids {
		p := notificationPredicate{key: "push_id", id: id}
		if !containsNotification(f.notifications, p) {
			f.notifications = append(f.notifications, p)
		}
	}
}

// GroupIDs restricts the stream to events caused by the given notification
// groups (e.g. automated pushes share a group id).
func (f *Filter) GroupIDs(ids ...string) {
	for _, id := range ids {
		p := notificationPredicate{key: "group_id", id: id}
		if !containsNotification(f.notifications, p) {
			f.notifications = append(f.notifications, p)
		}
	}
}

func (f *Filter) empty() bool {
	return len(f.types) == 0 && len(f.deviceTypes) == 0 && f.latency == 0 &&
		len(f.devices) == 0 && len(f.notifications) == 0
}

// MarshalJSON emits one object with only the non-empty categories, so an
// empty filter serializes to {} and configuring no filters at all omits the
// filters array entirely.
func (f *Filter) MarshalJSON() ([]byte, error) {
	out := filterSpec{
		DeviceTypes: f.deviceTypes,
		Types:       f.types,
		Latency:     f.latency,
	}
	for _, d := range f.devices {
		out.Devices = append(out.Devices, map[string]string{string(d.kind): d.id})
	}
	for _, n := range f.notifications {
		out.Notifications = append(out.Notifications, map[string]string{n.key: n.id})
	}
	return json.Marshal(out)
}

type filterSpec struct {
	DeviceTypes   []string            `json:"device_types,omitempty"`
	Types         []string            `json:"types,omitempty"`
	Latency       int64               `json:"latency,omitempty"`
	Devices       []map[string]string `json:"devices,omitempty"`
	Notifications []map[string]string `json:"notifications,omitempty"`
}

func appendUnique(s []string, v string) []string {
	for _, have := range s {
		if have == v {
			return s
		}
	}
	return append(s, v)
}

func containsDevice(s []devicePredicate, p devicePredicate) bool {
	for _, have := range s {
		if have == p {
			return true
		}
	}
	return false
}

func containsNotification(s []notificationPredicate, p notificationPredicate) bool {
	for _, have := range s {
		if have == p {
			return true
		}
	}
	return false
}
