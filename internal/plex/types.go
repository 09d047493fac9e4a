package plex

// Section is a library section.
type Section struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Type  string `json:"type"` // "photo" for photo libraries
}

// Photo is one photo item with its file parts.
type Photo struct {
	RatingKey string   `json:"ratingKey"`
	Title     string   `json:"title"`
	Tags      []string `json:"-"`
	Parts     []Part   `json:"-"`
}

// File returns the server-side path of the first part, or "".
func (p Photo) File() string {
	if len(p.Parts) == 0 {
		return ""
	}
	return p.Parts[0].File
}

// Part is a downloadable file belonging to a photo.
type Part struct {
	Key  string `json:"key"`  // Download path, e.g. /library/parts/123/file.jpg
	File string `json:"file"` // Path on the Plex server
	Size int64  `json:"size"`
}

// Raw API response types (internal)

type rawContainer struct {
	MediaContainer struct {
		Size      int           `json:"size"`
		Directory []Section     `json:"Directory"`
		Metadata  []rawMetadata `json:"Metadata"`
	} `json:"MediaContainer"`
}

type rawMetadata struct {
	RatingKey string     `json:"ratingKey"`
	Title     string     `json:"title"`
	Type      string     `json:"type"`
	Tag       []rawTag   `json:"Tag"`
	Media     []rawMedia `json:"Media"`
}

type rawTag struct {
	Tag string `json:"tag"`
}

type rawMedia struct {
	Part []Part `json:"Part"`
}

func (m rawMetadata) toPhoto() Photo {
	p := Photo{RatingKey: m.RatingKey, Title: m.Title}
	for _, t := range m.Tag {
		p.Tags = append(p.Tags, t.Tag)
	}
	for _, media := range m.Media {
		p.Parts = append(p.Parts, media.Part...)
	}
	return p
}
