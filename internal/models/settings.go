package models

import "time"

// SiteSettings is the single server-owned configuration record edited by admins
type SiteSettings struct {
	GalleryName        string    `json:"galleryName"`
	ContactEmail       string    `json:"contactEmail"`
	AnnouncementBanner string    `json:"announcementBanner"`
	CommissionsOpen    bool      `json:"commissionsOpen"`
	ShippingNote       string    `json:"shippingNote"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// DefaultSiteSettings is served until an admin saves settings for the first time
func DefaultSiteSettings() SiteSettings {
	return SiteSettings{
		GalleryName:     "Gallery",
		CommissionsOpen: true,
	}
}
