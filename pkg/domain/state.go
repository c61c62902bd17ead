package domain

import (
	"fmt"
	"maps"
	"time"
)

// Namespace partitions page state.
type Namespace string

const (
	// NamespaceMod is shared by every component of a mod.
	NamespaceMod Namespace = "mod"
	// NamespacePublic is shared by every mod on the page.
	NamespacePublic Namespace = "public"
	// NamespacePrivate belongs to a single mod component.
	NamespacePrivate Namespace = "private"
)

// IsValid reports whether ns is a known namespace.
func (ns Namespace) IsValid() bool {
	return ns == NamespaceMod || ns == NamespacePublic || ns == NamespacePrivate
}

// Bucket returns the storage key of the namespace for the given component.
func (ns Namespace) Bucket(ref ModComponentRef) (string, error) {
	switch ns {
	case NamespacePublic:
		return "public", nil
	case NamespaceMod:
		if ref.ModID == "" {
			return "", fmt.Errorf("namespace %q requires a mod id", ns)
		}
		return "mod:" + ref.ModID, nil
	case NamespacePrivate:
		if ref.ModComponentID == "" {
			return "", fmt.Errorf("namespace %q requires a mod component id", ns)
		}
		return "private:" + ref.ModComponentID, nil
	}
	return "", fmt.Errorf("unknown state namespace: %q", ns)
}

// MergeStrategy selects how a write combines with the existing state.
type MergeStrategy string

const (
	MergeReplace MergeStrategy = "replace"
	MergeShallow MergeStrategy = "shallow"
	MergeDeep    MergeStrategy = "deep"
)

// SyncPolicy controls whether a mod variable survives page navigation.
type SyncPolicy string

const (
	SyncNone    SyncPolicy = "none"
	SyncTab     SyncPolicy = "tab"
	SyncSession SyncPolicy = "session"
)

// SessionVariables returns the entries of data whose declared policy is session.
func SessionVariables(data map[string]any, policies map[string]SyncPolicy) map[string]any {
	kept := make(map[string]any)
	for name, value := range data {
		if policies[name] == SyncSession {
			kept[name] = value
		}
	}
	return kept
}

// StateQuery reads one namespace.
type StateQuery struct {
	Namespace Namespace       `json:"namespace" mapstructure:"namespace"`
	Ref       ModComponentRef `json:"modComponentRef" mapstructure:"modComponentRef"`
}

// StateUpdate writes one namespace.
type StateUpdate struct {
	Namespace     Namespace       `json:"namespace" mapstructure:"namespace"`
	Data          map[string]any  `json:"data" mapstructure:"data"`
	MergeStrategy MergeStrategy   `json:"mergeStrategy" mapstructure:"mergeStrategy"`
	Ref           ModComponentRef `json:"modComponentRef" mapstructure:"modComponentRef"`
}

// StateChangeEvent is emitted after every successful write.
type StateChangeEvent struct {
	Namespace      Namespace      `json:"namespace"`
	ModID          string         `json:"modId,omitempty"`
	ModComponentID string         `json:"modComponentId,omitempty"`
	Changed        map[string]any `json:"changed,omitempty"`
}

// MergeState applies data to prev according to strategy. Neither input is mutated.
func MergeState(prev, data map[string]any, strategy MergeStrategy) (map[string]any, error) {
	switch strategy {
	case "", MergeReplace:
		return CloneMap(data), nil
	case MergeShallow:
		next := CloneMap(prev)
		maps.Copy(next, data)
		return next, nil
	case MergeDeep:
		return deepMerge(CloneMap(prev), data), nil
	}
	return nil, fmt.Errorf("unknown merge strategy: %q", strategy)
}

// deepMerge merges src into dst recursively. Maps merge by key, slices by index.
func deepMerge(dst, src map[string]any) map[string]any {
	for k, sv := range src {
		dv, exists := dst[k]
		if !exists {
			dst[k] = cloneValue(sv)
			continue
		}
		dst[k] = mergeValue(dv, sv)
	}
	return dst
}

func mergeValue(dv, sv any) any {
	switch s := sv.(type) {
	case map[string]any:
		if d, ok := dv.(map[string]any); ok {
			return deepMerge(CloneMap(d), s)
		}
	case []any:
		if d, ok := dv.([]any); ok {
			out := make([]any, max(len(d), len(s)))
			copy(out, d)
			for i, v := range s {
				if i < len(d) {
					out[i] = mergeValue(d[i], v)
				} else {
					out[i] = cloneValue(v)
				}
			}
			return out
		}
	case nil:
		return dv
	}
	return cloneValue(sv)
}

// CloneMap deep-copies maps and slices nested in m.
func CloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	}
	return v
}

// AsyncState is the entry a cached sub-pipeline keeps in page state.
type AsyncState struct {
	IsLoading   bool             `json:"isLoading" mapstructure:"isLoading"`
	IsFetching  bool             `json:"isFetching" mapstructure:"isFetching"`
	IsSuccess   bool             `json:"isSuccess" mapstructure:"isSuccess"`
	IsError     bool             `json:"isError" mapstructure:"isError"`
	Data        any              `json:"data" mapstructure:"data"`
	CurrentData any              `json:"currentData" mapstructure:"currentData"`
	RequestID   string           `json:"requestId" mapstructure:"requestId"`
	Error       *SerializedError `json:"error" mapstructure:"error"`
	ExpiresAt   *time.Time       `json:"expiresAt" mapstructure:"expiresAt"`
}

// Fresh reports whether the entry holds data that has not expired at now.
func (s AsyncState) Fresh(now time.Time) bool {
	if !s.IsSuccess {
		return false
	}
	return s.ExpiresAt == nil || now.Before(*s.ExpiresAt)
}

// ToMap converts the entry to the plain shape stored in page state.
func (s AsyncState) ToMap() map[string]any {
	out := map[string]any{
		"isLoading":   s.IsLoading,
		"isFetching":  s.IsFetching,
		"isSuccess":   s.IsSuccess,
		"isError":     s.IsError,
		"data":        s.Data,
		"currentData": s.CurrentData,
		"requestId":   s.RequestID,
		"error":       nil,
		"expiresAt":   nil,
	}
	if s.Error != nil {
		out["error"] = map[string]any{"name": s.Error.Name, "message": s.Error.Message}
	}
	if s.ExpiresAt != nil {
		out["expiresAt"] = s.ExpiresAt.UTC().Format(time.RFC3339Nano)
	}
	return out
}
