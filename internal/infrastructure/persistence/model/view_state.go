package model

// ViewState is one row of the local state database.
type ViewState struct {
	ViewName    string `gorm:"column:view_name;type:text;primaryKey"`
	Fingerprint string `gorm:"column:fingerprint;type:text;not null"`
	Dialect     string `gorm:"column:dialect;type:text;not null"`
	DDL         string `gorm:"column:ddl;type:text;not null"`
	RunID       string `gorm:"column:run_id;type:text;not null;index"`
	RowCount    int64  `gorm:"column:row_count;not null;default:0"`
	AppliedAt   string `gorm:"column:applied_at;type:text;not null"`
}

func (ViewState) TableName() string {
	return "view_state"
}
