// Package segment speaks the remote segmentation service's protocol: one
// HTTP POST per round carrying the captured photo, answered by a list of
// mask crops with bounding boxes and optional inpaint textures.
package segment

// Request is the body of POST /segment. Field names and defaults mirror the
// service's schema.
type Request struct {
	Image    string  `json:"image" validate:"required"`
	Conf     float64 `json:"conf" validate:"gte=0.1,lte=0.9"`
	IOU      float64 `json:"iou" validate:"gte=0.1,lte=0.9"`
	MaxMasks int     `json:"max_masks" validate:"gte=1,lte=20"`
	MinArea  float64 `json:"min_area,omitempty" validate:"gte=0,lte=1"`

	// Inpainting controls. Combined mode inpaints all masks in one pass and
	// returns a single full-frame texture; individual mode returns one crop
	// per mask.
	CombinedInpaint bool    `json:"combined_inpaint"`
	DilatePixels    int     `json:"dilate_pixels,omitempty" validate:"gte=0"`
	InpaintScale    float64 `json:"inpaint_scale,omitempty" validate:"omitempty,gte=0.25,lte=1"`

	// Background exclusion drops masks overlapping detected wall/floor/
	// ceiling regions.
	ExcludeBackground          string  `json:"exclude_background,omitempty" validate:"omitempty,oneof=none segformer heuristic"`
	BackgroundOverlapThreshold float64 `json:"background_overlap_threshold,omitempty" validate:"gte=0,lte=1"`
}

// DefaultRequest returns a request with the service's documented defaults.
// The image is left empty for the caller to fill.
func DefaultRequest() Request {
	return Request{
		Conf:                       0.25,
		IOU:                        0.9,
		MaxMasks:                   20,
		MinArea:                    0.005,
		CombinedInpaint:            true,
		DilatePixels:               10,
		InpaintScale:               0.25,
		ExcludeBackground:          "none",
		BackgroundOverlapThreshold: 0.5,
	}
}

// Mask is one segmented object. Data is a base64 PNG cropped to BBox;
// Width/Height are the crop dimensions. A nil BBox means the mask covers the
// whole frame. InpaintData, when present, is a base64 JPEG of the background
// behind the object, cropped to InpaintBBox (the bbox expanded by 15% and
// clamped to the frame).
type Mask struct {
	ID          int       `json:"id"`
	Data        string    `json:"data"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	BBox        []float64 `json:"bbox"`
	Color       [3]int    `json:"color"`
	InpaintData string    `json:"inpaint_data,omitempty"`
	InpaintBBox []int     `json:"inpaint_bbox,omitempty"`
}

// Response is the service's reply. Success=false or Count=0 is a terminal
// but non-fatal outcome for the round.
type Response struct {
	Success             bool    `json:"success"`
	Count               int     `json:"count"`
	Masks               []Mask  `json:"masks"`
	ImageSize           [2]int  `json:"image_size"`
	ProcessingTime      float64 `json:"processing_time,omitempty"`
	CombinedInpaintData string  `json:"combined_inpaint_data,omitempty"`
	Error               string  `json:"error,omitempty"`
}
