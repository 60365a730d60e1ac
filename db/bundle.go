package db

type InnerBundleStatus int

const (
	Finalizing InnerBundleStatus = 0
	Finalized  InnerBundleStatus = 1 // when every batch in the bundle is uploaded to the archive, its status becomes Finalized
	Deprecated InnerBundleStatus = 2
)

type Bundle struct {
	Id          int64
	Name        string            `gorm:"NOT NULL;uniqueIndex:idx_bundle_name;size:64"`
	StartHeight uint64            `gorm:"NOT NULL"`
	EndHeight   uint64            `gorm:"NOT NULL"`
	Status      InnerBundleStatus `gorm:"NOT NULL"`
	Calibrated  bool
	CreatedTime int64 `gorm:"NOT NULL;comment:created_time"`
}

func (*Bundle) TableName() string {
	return "bundle"
}
