package domain

// AppendRequest is the payload of a fun-fact submission.
type AppendRequest struct {
	Facts []string `json:"funfacts" validate:"required,min=1,dive,required"`
}

// ReplaceRequest overwrites the fact at a 1-based Index.
type ReplaceRequest struct {
	Index *int   `json:"index" validate:"required"`
	Fact  string `json:"funfact" validate:"required"`
}

// DeleteRequest removes the fact at a 1-based Index.
type DeleteRequest struct {
	Index *int `json:"index" validate:"required"`
}

// IndexPtr is a convenience for building requests.
func IndexPtr(i int) *int { return &i }
