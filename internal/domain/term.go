package domain

// Term is a local category term. ExternalPath is empty for terms created
// before their upstream identity was known.
type Term struct {
	ID           int64  `db:"id"`
	Taxonomy     string `db:"taxonomy"`
	Name         string `db:"name"`
	ParentID     int64  `db:"parent_id"`
	ExternalPath string `db:"external_path"`
}
