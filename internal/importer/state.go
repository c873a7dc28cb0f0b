package importer

// State is the orchestrator's position in an import
type State int32

const (
	StateStart State = iota
	StateReadTOC
	StateResolveRelease
	StateResolveCoverArt
	StateRip
	StateEncode
	StateTag
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateReadTOC:
		return "read_toc"
	case StateResolveRelease:
		return "resolve_release"
	case StateResolveCoverArt:
		return "resolve_cover_art"
	case StateRip:
		return "rip"
	case StateEncode:
		return "encode"
	case StateTag:
		return "tag"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}
