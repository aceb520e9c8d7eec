package domain

// SLACompliance summarizes met versus breached tickets.
type SLACompliance struct {
	Met        int     `json:"met"`
	Breached   int     `json:"breached"`
	Percentage float64 `json:"percentage"`
}

// Analytics is the tenant read model returned by the analytics aggregator.
type Analytics struct {
	Total                   int                    `json:"total"`
	ByStatus                map[TicketStatus]int   `json:"byStatus"`
	ByPriority              map[TicketPriority]int `json:"byPriority"`
	ByCategory              map[string]int         `json:"byCategory"`
	SLACompliance           SLACompliance          `json:"slaCompliance"`
	AvgFirstResponseMinutes float64                `json:"avgFirstResponseMinutes"`
	AvgResolutionMinutes    float64                `json:"avgResolutionMinutes"`
	RedFlagCount            int                    `json:"redFlagCount"`
}
