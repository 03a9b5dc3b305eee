package whiteboard

// State 프로젝트 보드 동기화 상태
type State int

const (
	StateUninitialized State = iota // InitWhiteboard 호출 전
	StateInitializing               // getOrCreate 대기 중
	StateLive                       // 구독 중, 로컬이 원격을 반영
	StateDisposed                   // 구독 해제됨
)

// String 상태를 문자열로 반환
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateLive:
		return "live"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Status 연결 상태 표시
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnected
	StatusSyncing
)

func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusSyncing:
		return "syncing"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Stats 동기화 통계
type Stats struct {
	Writes          uint64
	FailedWrites    uint64
	RemoteChanges   uint64
	SuppressedEchos uint64
	Conflicts       uint64
}
