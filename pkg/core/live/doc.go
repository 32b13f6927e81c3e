// Package live turns continuous microphone capture into discrete utterance segments.
//
// Capture buffers of arbitrary size are cut into fixed frames by a Framer. Each
// frame is classified as speech or silence by a SpeechDetector and fed to the
// Segmenter, which groups speech into candidate segments:
//
//	capture → Framer → SpeechDetector → Segmenter → Segment
//	                                        │
//	                                        └── MuteWindow (assistant speaking)
//
// A candidate ends after a run of silence longer than SilenceTimeout. It is only
// emitted when its voiced duration exceeds MinUtterance; shorter candidates are
// discarded as noise. A candidate longer than MaxSegment is flushed early.
//
// While the MuteWindow is active (the assistant's own speech is playing) no
// segment is emitted, so playback is never transcribed as user input.
//
// Durations are measured by counting frames, which keeps the segmenter
// deterministic and independent of wall-clock scheduling.
package live
