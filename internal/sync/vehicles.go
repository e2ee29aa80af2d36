package sync

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/polishcrew/syncbridge/internal/state"
	"github.com/polishcrew/syncbridge/pkg/types"
)

// safeParse normalizes a remote column that may hold structured JSON or a
// serialized JSON string. It returns the structured form, or nil when the
// value is absent, scalar, or unparseable. Callers treat nil as "no
// information, preserve existing".
func safeParse(raw json.RawMessage) json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	switch raw[0] {
	case '{', '[':
		return raw
	case '"':
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil
		}
		trimmed := bytes.TrimSpace([]byte(inner))
		if len(trimmed) == 0 || !json.Valid(trimmed) {
			return nil
		}
		return trimmed
	default:
		return nil
	}
}

// rawAddon decodes an addon entry that may be a bare name or a full
// {name, price, included} record. Bare names get price 0, not included.
type rawAddon struct {
	Name     string
	Price    types.Money
	Included bool
}

func (a *rawAddon) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*a = rawAddon{Name: name}
		return nil
	}
	var obj struct {
		Name     string      `json:"name"`
		Price    types.Money `json:"price"`
		Included bool        `json:"included"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		*a = rawAddon{}
		return nil
	}
	*a = rawAddon(obj)
	return nil
}

type rawVehicle struct {
	ID     string      `json:"id"`
	Label  string      `json:"label"`
	Pkg    string      `json:"pkg"`
	Size   string      `json:"size"`
	Base   types.Money `json:"base"`
	Addons []rawAddon  `json:"addons"`
}

// rawService decodes a serialized service entry. Non-object entries decode
// to all-default fields.
type rawService struct {
	Type     string
	Name     string
	Price    types.Money
	Included bool
}

func (s *rawService) UnmarshalJSON(data []byte) error {
	var obj struct {
		Type     string      `json:"type"`
		Name     string      `json:"name"`
		Price    types.Money `json:"price"`
		Included bool        `json:"included"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		*s = rawService{}
		return nil
	}
	*s = rawService(obj)
	return nil
}

// DeserializeVehicles rebuilds a quote's vehicle list. When the quote
// carries no vehicle list, exactly one vehicle is synthesized from the
// quote's package, size, total and addons.
func DeserializeVehicles(quote types.RemoteQuote) []state.Vehicle {
	var rawVehicles []rawVehicle
	if parsed := safeParse(quote.Vehicles); parsed != nil {
		if err := json.Unmarshal(parsed, &rawVehicles); err != nil {
			rawVehicles = nil
		}
	}

	if len(rawVehicles) > 0 {
		vehicles := make([]state.Vehicle, 0, len(rawVehicles))
		for i, v := range rawVehicles {
			id := v.ID
			if id == "" {
				id = fmt.Sprintf("vehicle-%d", i)
			}
			pkg := v.Pkg
			if pkg == "" {
				pkg = quote.Pkg
			}
			size := v.Size
			if size == "" {
				size = quote.Size
			}
			vehicles = append(vehicles, state.Vehicle{
				ID:     id,
				Label:  v.Label,
				Pkg:    pkg,
				Size:   size,
				Base:   float64(v.Base),
				Addons: convertAddons(v.Addons),
			})
		}
		return vehicles
	}

	var rawAddons []rawAddon
	if parsed := safeParse(quote.Addons); parsed != nil {
		if err := json.Unmarshal(parsed, &rawAddons); err != nil {
			rawAddons = nil
		}
	}

	return []state.Vehicle{
		{
			ID:     "vehicle-0",
			Pkg:    quote.Pkg,
			Size:   quote.Size,
			Base:   float64(quote.Total),
			Addons: convertAddons(rawAddons),
		},
	}
}

// DeserializeServices rebuilds a services list from a serialized or
// structured value. It returns nil when the value does not parse to a
// list; callers preserve the existing services in that case.
func DeserializeServices(raw json.RawMessage) []state.Service {
	parsed := safeParse(raw)
	if parsed == nil || parsed[0] != '[' {
		return nil
	}

	var entries []rawService
	if err := json.Unmarshal(parsed, &entries); err != nil {
		return nil
	}

	services := make([]state.Service, 0, len(entries))
	for _, entry := range entries {
		svcType := entry.Type
		if svcType == "" {
			svcType = "service"
		}
		name := entry.Name
		if name == "" {
			name = "Service"
		}
		services = append(services, state.Service{
			ID:       uuid.New().String(),
			Type:     svcType,
			Name:     name,
			Price:    float64(entry.Price),
			Included: entry.Included,
		})
	}
	return services
}

func convertAddons(raw []rawAddon) []state.Addon {
	addons := make([]state.Addon, 0, len(raw))
	for _, a := range raw {
		addons = append(addons, state.Addon{
			Name:     a.Name,
			Price:    float64(a.Price),
			Included: a.Included,
		})
	}
	return addons
}
