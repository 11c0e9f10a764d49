package store

import "qfree/queue-service/internal/models"

const (
	PersonWaiting = "waiting"
	PersonServing = "serving"
	PersonDone    = "done"
	PersonRemoved = "removed"
)

const (
	ActionCallNext = "call_next"
	ActionComplete = "complete"
	ActionLeave    = "leave"
	ActionRemove   = "remove"
)

var transitionMap = map[string][]string{
	ActionCallNext: {PersonWaiting},
	ActionComplete: {PersonServing},
	ActionLeave:    {PersonWaiting},
	ActionRemove:   {PersonWaiting},
}

var transitionTarget = map[string]string{
	ActionCallNext: PersonServing,
	ActionComplete: PersonDone,
	ActionLeave:    PersonRemoved,
	ActionRemove:   PersonRemoved,
}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}

// Transition returns the state a person reaches when action is applied in
// fromStatus, or ErrInvalidState.
func Transition(action, fromStatus string) (string, error) {
	if !ValidTransition(action, fromStatus) {
		return "", ErrInvalidState
	}
	return transitionTarget[action], nil
}

// Locate finds the first person in queue that match accepts and reports their
// status. index is their place in the waiting line, or -1 when they are being
// served or not in the queue at all (status "").
func Locate(queue models.Queue, match func(models.Person) bool) (string, int) {
	for i, person := range queue.People {
		if match(person) {
			return PersonWaiting, i
		}
	}
	if queue.CurrentlyServing != nil && match(*queue.CurrentlyServing) {
		return PersonServing, -1
	}
	return "", -1
}
