package util

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// AudioInfo describes a probed recording.
type AudioInfo struct {
	Duration   float64 `json:"duration"`
	SampleRate int     `json:"sampleRate"`
	Channels   int     `json:"channels"`
	Codec      string  `json:"codec"`
}

// ProbeAudio reads stream metadata from an audio file.
func ProbeAudio(path string) (*AudioInfo, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("audio file not found: %w", err)
	}

	jsonOutput, err := ffmpeg.Probe(path)
	if err != nil {
		return nil, fmt.Errorf("probe audio: %w", err)
	}

	var result struct {
		Streams []struct {
			CodecType  string `json:"codec_type"`
			CodecName  string `json:"codec_name"`
			SampleRate string `json:"sample_rate"`
			Channels   int    `json:"channels"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal([]byte(jsonOutput), &result); err != nil {
		return nil, fmt.Errorf("parse probe output: %w", err)
	}

	info := &AudioInfo{}
	for _, stream := range result.Streams {
		if stream.CodecType == "audio" {
			info.Codec = stream.CodecName
			info.Channels = stream.Channels
			info.SampleRate, _ = strconv.Atoi(stream.SampleRate)
			break
		}
	}
	info.Duration, _ = strconv.ParseFloat(result.Format.Duration, 64)
	return info, nil
}

// NormalizeAudio re-encodes a recording as 16 kHz mono FLAC, the format the
// speech recognizer is configured for.
func NormalizeAudio(inputPath, outputPath string) error {
	return ffmpeg.Input(inputPath).
		Output(outputPath, ffmpeg.KwArgs{
			"ac":  "1",
			"ar":  "16000",
			"c:a": "flac",
		}).
		OverWriteOutput().
		Silent(true).
		Run()
}

// FFmpegAvailable reports whether an ffmpeg binary is on PATH.
func FFmpegAvailable() bool {
	cmd := exec.Command("ffmpeg", "-version", "-hide_banner")
	var out bytes.Buffer
	cmd.Stdout = &out
	return cmd.Run() == nil
}
