package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/debrief-backend/internal/platform/logger"
	"github.com/yungbote/debrief-backend/internal/repos"
)

type Repos struct {
	Recording  repos.RecordingRepo
	Job        repos.JobRepo
	Transcript repos.TranscriptRepo
	Debrief    repos.DebriefRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Recording:  repos.NewRecordingRepo(db, log),
		Job:        repos.NewJobRepo(db, log),
		Transcript: repos.NewTranscriptRepo(db, log),
		Debrief:    repos.NewDebriefRepo(db, log),
	}
}
