package lib

import (
	"log"
	"time"

	"nftdrops/src/config"

	"github.com/go-co-op/gocron/v2"
)

var scheduler gocron.Scheduler

func NewScheduler(s gocron.Scheduler) {
	scheduler = s
}

func GetScheduler() (gocron.Scheduler, error) {
	if scheduler != nil {
		return scheduler, nil
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Printf("Error initializing Scheduler: %s\n", err.Error())
		return nil, err
	}
	scheduler = sched
	numJobs := len(sched.Jobs())
	log.Printf("Jobs in queue: %d\n", numJobs)
	return sched, nil
}

// TaskScheduler runs a function once at a later time.
type TaskScheduler interface {
	ScheduleOnce(name string, at time.Time, fn func()) (string, error)
}

type CronScheduler struct {
	inner gocron.Scheduler
}

func NewCronScheduler(s gocron.Scheduler) *CronScheduler {
	return &CronScheduler{inner: s}
}

func (c *CronScheduler) ScheduleOnce(name string, at time.Time, fn func()) (string, error) {
	j, err := c.inner.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(at)),
		gocron.NewTask(fn),
		gocron.WithName(name),
	)
	if err != nil {
		log.Printf("Error creating job: %s\n", err.Error())
		return "", err
	}
	log.Printf("[Local] New Job scheduled on: %s %s %s\n", j.ID().String(), name, at.Format(config.TIME_PARSE_FORMAT))
	return j.ID().String(), nil
}
