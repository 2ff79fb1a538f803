package snowflake

import "testing"

func TestSetupSnowflake(t *testing.T) {
	err := Setup(0)
	if err != nil {
		t.Error(err)
	}
}

func TestGenerateSnowflake(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Error(err)
	}
	if id <= 0 {
		t.Errorf("Generated snowflake %d is not positive", id)
	}
}

func TestExtractRoundTrip(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatal(err)
	}

	parts := Extract(id)
	if parts.Timestamp != ExtractTimestamp(id) {
		t.Errorf("Extract timestamp %d does not match ExtractTimestamp %d", parts.Timestamp, ExtractTimestamp(id))
	}
	if parts.WorkerID != workerID {
		t.Errorf("Extracted worker ID %d, want %d", parts.WorkerID, workerID)
	}
}

func TestSnowflakeIncrementOverflow(t *testing.T) {
	for i := 0; i < 100000; i++ {
		_, err := Generate()
		if err != nil {
			return
		}
	}
	t.Error("Expected increment overflow, but there wasn't")
}
