package rational

// CurrentIndex returns indexFromTimestamp(rate, currentTime(TAI)).
func CurrentIndex(rate Rate) int64 {
	return IndexFromTimestamp(rate, CurrentTimeTAI())
}
