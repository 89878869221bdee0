package manager_serv

import (
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Transition is one supervised status change, journaled for post-mortem
// inspection of the fleet.
type Transition struct {
	ID      uint      `gorm:"primarykey" json:"id"`
	Service string    `gorm:"index" json:"service"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	At      time.Time `json:"at"`
}

// Journal persists status transitions in a local sqlite database.
type Journal struct {
	db *gorm.DB
}

// OpenJournal opens (and migrates) the transition database at path.
func OpenJournal(path string) (*Journal, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Transition{}); err != nil {
		return nil, err
	}
	return &Journal{db: db}, nil
}

// Record appends one transition.
func (j *Journal) Record(service, from, to string) error {
	return j.db.Create(&Transition{
		Service: service,
		From:    from,
		To:      to,
		At:      time.Now().UTC(),
	}).Error
}

// History returns the most recent transitions for a service, newest first.
// An empty service name selects the whole fleet.
func (j *Journal) History(service string, limit int) ([]Transition, error) {
	q := j.db.Order("id desc").Limit(limit)
	if service != "" {
		q = q.Where("service = ?", service)
	}
	var out []Transition
	err := q.Find(&out).Error
	return out, err
}

// Close releases the underlying database handle.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
