package schedjobs

import "context"

type CronJob struct {
	ID          string
	Minutes     uint64 // 60 bits
	Hours       uint32 // 24 bits
	DaysOfMonth uint32 // 31 bits
	Weekdays    uint8  // 7 bits
	Task        func(ctx context.Context) error
	// Job-specific callbacks
	OnAdded    func()
	OnFinished func(error)
}

// EveryMinute returns a cron job running task at every minute
func EveryMinute(jobID string, task func(ctx context.Context) error) *CronJob {
	return &CronJob{
		ID:          jobID,
		Task:        task,
		Minutes:     AllMinutes,
		Hours:       AllHours,
		DaysOfMonth: AllDaysOfMonth,
		Weekdays:    AllWeekdays,
	}
}

const (
	AllMinutes     uint64 = 0xFFFFFFFFFFFFFFF // 60 bits set
	AllHours       uint32 = 0xFFFFFF          // 24 bits set
	AllWeekdays    uint8  = 0b01111111        // sun:0b00000001, mon:0b00000010, ..., fri:0b00100000, sat:0b01000000
	AllDaysOfMonth uint32 = 0x7FFFFFFF        // 31 bits set
)

func BitsFromMinutes(list []int) uint64     { return bitsFrom[uint64](list, 0, 59) }
func BitsFromHours(list []int) uint32       { return bitsFrom[uint32](list, 0, 23) }
func BitsFromWeekdays(list []int) uint8     { return bitsFrom[uint8](list, 0, 6) }
func BitsFromDaysOfMonth(list []int) uint32 { return bitsFrom[uint32](list, 1, 31) } // day 1 = bit 0

// bitsFrom sets bit v-lo for every v in [lo, hi]; values outside are ignored
func bitsFrom[T uint8 | uint32 | uint64](list []int, lo, hi int) T {
	var bits T
	for _, v := range list {
		if v >= lo && v <= hi {
			bits |= 1 << (v - lo)
		}
	}
	return bits
}
