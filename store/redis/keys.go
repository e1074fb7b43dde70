package redis

// Redis key naming conventions. All keys are prefixed with "coursegen:"
// to avoid collisions.

const keyPrefix = "coursegen:"

// queueKey returns the Sorted Set key for a queue: coursegen:queue:{name}
func queueKey(name string) string { return keyPrefix + "queue:" + name }

// entryKey returns the key for a queue entry: coursegen:queue:entry:{id}
func entryKey(id string) string { return keyPrefix + "queue:entry:" + id }

// payloadKey returns the key for a job payload: coursegen:payload:{jobID}
func payloadKey(jobID string) string { return keyPrefix + "payload:" + jobID }

// eventChannel returns the pub/sub channel carrying a job's events:
// coursegen:events:{jobID}
func eventChannel(jobID string) string { return keyPrefix + "events:" + jobID }
