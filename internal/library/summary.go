package library

// Summary is an entry without its document and blobs.
// Used for list output to keep responses small.
type Summary struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	NameNorm         string   `json:"name_norm"`
	Spec             string   `json:"spec"`
	SourceFormat     string   `json:"source_format"`
	SourceName       *string  `json:"source_name,omitempty"`
	Creator          *string  `json:"creator,omitempty"`
	CharacterVersion *string  `json:"character_version,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	TokensEstimate   int      `json:"tokens_estimate"`
	HasImage         bool     `json:"has_image"`
	ImageBytes       int      `json:"image_bytes"`
	AssetCount       int      `json:"asset_count"`
	CreatedAt        int64    `json:"created_at"`
	UpdatedAt        int64    `json:"updated_at"`
	DeletedAt        *int64   `json:"deleted_at,omitempty"`
}

// ToSummary strips the document and blobs.
func (e *Entry) ToSummary() Summary {
	return Summary{
		ID:               e.ID,
		Name:             e.NameRaw,
		NameNorm:         e.NameNorm,
		Spec:             e.Spec,
		SourceFormat:     e.SourceFormat,
		SourceName:       e.SourceName,
		Creator:          e.Creator,
		CharacterVersion: e.CharacterVersion,
		Tags:             e.Tags,
		TokensEstimate:   e.TokensEstimate,
		HasImage:         len(e.MainImage) > 0,
		ImageBytes:       len(e.MainImage),
		AssetCount:       e.AssetCount,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
		DeletedAt:        e.DeletedAt,
	}
}
