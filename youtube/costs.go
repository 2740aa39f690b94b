package youtube

// Quota cost per Data API v3 endpoint, in provider quota units. Search
// is two orders of magnitude more expensive than item lookups. These
// are fixed, provider-published values.
const (
	CostSearch        = 100
	CostChannels      = 1
	CostPlaylistItems = 1
	CostVideos        = 1
)

// endpointCosts maps endpoint path to its quota cost.
var endpointCosts = map[string]int64{
	endpointSearch:        CostSearch,
	endpointChannels:      CostChannels,
	endpointPlaylistItems: CostPlaylistItems,
	endpointVideos:        CostVideos,
}

// Cost returns the quota cost of an endpoint, or 0 for unknown paths.
func Cost(endpoint string) int64 {
	return endpointCosts[endpoint]
}
