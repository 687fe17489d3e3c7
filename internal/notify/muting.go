package notify

import (
	"fmt"
	"strings"
)

// MutingStatus is the outcome of checking a quota against the muting
// configuration. Message explains which entry muted it.
type MutingStatus struct {
	Muted   bool
	Message string
}

// QuotaRef names the quota an event is about.
type QuotaRef struct {
	Service   string
	QuotaName string
	QuotaCode string
	Resource  string
}

type serviceMuting struct {
	all      bool
	wildcard bool
	items    []string
}

// Muting is a parsed muting configuration. Entries are "service" or
// "service:*" to mute a whole service, or "service:item" where item is a
// quota code or quota name. Services and codes compare case-insensitively.
type Muting struct {
	services map[string]*serviceMuting
}

func ParseMuting(entries []string) Muting {
	m := Muting{services: map[string]*serviceMuting{}}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		service, item, hasItem := strings.Cut(e, ":")
		service = strings.ToLower(strings.TrimSpace(service))
		item = strings.TrimSpace(item)
		if service == "" {
			continue
		}
		sm, ok := m.services[service]
		if !ok {
			sm = &serviceMuting{}
			m.services[service] = sm
		}
		switch {
		case !hasItem:
			sm.all = true
		case item == "*":
			sm.wildcard = true
		case item != "":
			sm.items = append(sm.items, item)
		}
	}
	return m
}

// Status reports whether notifications about q are muted.
func (m Muting) Status(q QuotaRef) MutingStatus {
	service := strings.ToLower(q.Service)
	sm, ok := m.services[service]
	if !ok {
		return MutingStatus{}
	}
	if sm.all {
		return MutingStatus{
			Muted:   true,
			Message: fmt.Sprintf("%s in the notification muting configuration; all quotas/limits in %s muted", service, service),
		}
	}
	if sm.wildcard {
		return MutingStatus{
			Muted:   true,
			Message: fmt.Sprintf("%s:* in the notification muting configuration, all quotas/limits in %s muted", service, service),
		}
	}
	for _, item := range sm.items {
		if matches(item, q.QuotaCode) || matches(item, q.QuotaName) || matches(item, q.Resource) {
			return MutingStatus{
				Muted:   true,
				Message: fmt.Sprintf("%s:%s in the notification muting configuration; those quotas/limits are muted", service, strings.Join(sm.items, ",")),
			}
		}
	}
	return MutingStatus{}
}

func matches(item, value string) bool {
	return value != "" && strings.EqualFold(item, value)
}
