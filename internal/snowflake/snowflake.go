package snowflake

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Snowflake IDs pack a millisecond timestamp, a worker ID and a
// per-millisecond increment into an int64, so every entity ID sorts by
// creation time.
type Snowflake struct {
	Timestamp int64
	WorkerID  int64
	Increment int64
}

const (
	timestampLength int64 = 42
	timestampPos          = 64 - timestampLength
	workerLength    int64 = 10
	workerPos             = timestampPos - workerLength
	incrementLength       = 64 - (timestampLength + workerLength)
)

var (
	maxWorkerValue    = int64(math.Pow(2, float64(workerLength)) - 1)
	maxIncrementValue = int64(math.Pow(2, float64(incrementLength)) - 1)

	lastIncrement, lastTimestamp int64
	mutex                        sync.Mutex

	workerID    int64 = 0
	hasWorkerID       = false
)

func Setup(id int64) error {
	if id > maxWorkerValue {
		return fmt.Errorf("worker ID value exceeds maximum value of [%d]", maxWorkerValue)
	} else if !hasWorkerID {
		workerID = id
		hasWorkerID = true
		return nil
	}

	return fmt.Errorf("worker ID for snowflake generator has been already set")
}

func Generate() (int64, error) {
	mutex.Lock()
	defer mutex.Unlock()

	timestamp := time.Now().UnixMilli()
	if timestamp == lastTimestamp {
		lastIncrement += 1
		if lastIncrement > maxIncrementValue {
			return 0, fmt.Errorf("increment overflow after increment reached %d", lastIncrement)
		}
	} else {
		lastIncrement = 0
		lastTimestamp = timestamp
	}

	return timestamp<<timestampPos | workerID<<workerPos | lastIncrement, nil
}

func Extract(snowflakeId int64) Snowflake {
	return Snowflake{
		Timestamp: snowflakeId >> timestampPos,
		WorkerID:  (snowflakeId >> workerPos) & ((1 << workerLength) - 1),
		Increment: snowflakeId & ((1 << incrementLength) - 1),
	}
}

func ExtractTimestamp(snowflakeId int64) int64 {
	return snowflakeId >> timestampPos
}
