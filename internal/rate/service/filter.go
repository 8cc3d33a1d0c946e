package service

import (
	"sort"

	ratedomain "github.com/netprofile/netbill/internal/rate/domain"
)

// ResolveFilter returns the lowest-id filter whose every non-nil requirement
// equals the session attribute. A requirement on an attribute the session
// did not report never matches.
func ResolveFilter(filters []ratedomain.Filter, attrs ratedomain.SessionAttributes) (*ratedomain.Filter, error) {
	ordered := make([]ratedomain.Filter, len(filters))
	copy(ordered, filters)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	for i := range ordered {
		f := ordered[i]
		if requirementMet(f.NASPortType, attrs.NASPortType) &&
			requirementMet(f.ServiceType, attrs.ServiceType) &&
			requirementMet(f.FramedProtocol, attrs.FramedProtocol) &&
			requirementMet(f.TunnelType, attrs.TunnelType) &&
			requirementMet(f.TunnelMediumType, attrs.TunnelMediumType) {
			return &f, nil
		}
	}
	return nil, ratedomain.ErrNoFilterMatch
}

func requirementMet(required, actual *uint32) bool {
	if required == nil {
		return true
	}
	return actual != nil && *actual == *required
}
