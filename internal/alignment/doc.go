// Package alignment prepends reference voice intros to meeting audio.
//
// Each intro is a short recording of one participant saying who they are,
// stored as intro_<role>.mp3. The aligner normalizes every intro to the
// meeting's format, lays them end to end separated by silence, and records the
// tick interval each one occupies. Speaker resolution later uses those
// boundaries to learn which diarized speaker is which participant before the
// real meeting starts.
package alignment
