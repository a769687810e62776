package render

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-yolo/detector"
)

type boxLabel struct {
	rect    image.Rectangle
	clr     color.RGBA
	text    string
	textPos image.Point
}

// Label formats the text drawn above a detection, e.g. "person 87.50%".
func Label(obj detector.Object) string {
	return fmt.Sprintf("%s %.2f%%", obj.Name, obj.Score*100)
}

// DetectionBoxes renders the bounding boxes around the objects detected, with a label tag
// above each box.
func DetectionBoxes(img *gocv.Mat, objects []detector.Object, font Font, lineThickness int) {
	// keep a record of all box labels for later rendering
	labels := make([]boxLabel, 0, len(objects))

	for _, obj := range objects {
		clr := ClassColor(obj.Class)
		rect := obj.Box.Rectangle()
		gocv.Rectangle(img, rect, clr, lineThickness)

		text := Label(obj)
		textSize := gocv.GetTextSize(text, font.Face, font.Scale, font.Thickness)

		// Keep the tag inside the frame when the box touches the top edge.
		top := rect.Min.Y
		if top-textSize.Y-font.TopPad-font.BottomPad < 0 {
			top = textSize.Y + font.TopPad + font.BottomPad
		}

		labels = append(labels, boxLabel{
			rect: image.Rect(rect.Min.X, top-textSize.Y-font.TopPad-font.BottomPad,
				rect.Min.X+textSize.X+font.LeftPad+font.RightPad, top),
			clr:     clr,
			text:    text,
			textPos: image.Pt(rect.Min.X+font.LeftPad, top-font.BottomPad),
		})
	}

	// draw all labels last so they are the top most layer on the image
	for _, l := range labels {
		gocv.Rectangle(img, l.rect, l.clr, -1)
		gocv.PutTextWithParams(img, l.text, l.textPos, font.Face, font.Scale, font.Color,
			font.Thickness, font.LineType, false)
	}
}

// StatusLines formats the inference overlay, e.g.
//
//	Inference Running on : CPU
//	FPS : 24 | Inference Time : 41.67ms
func StatusLines(backend string, fps float64, elapsed time.Duration) []string {
	ms := float64(elapsed.Microseconds()) / 1000
	return []string{
		fmt.Sprintf("Inference Running on : %s", backend),
		fmt.Sprintf("FPS : %d | Inference Time : %.2fms", int(fps), ms),
	}
}

// Overlay draws text lines at the top left of the frame, 30px apart.
func Overlay(img *gocv.Mat, lines []string, font Font) {
	for i, line := range lines {
		gocv.PutTextWithParams(img, line, image.Pt(30, 50+30*i), font.Face, font.Scale,
			font.Color, font.Thickness, font.LineType, false)
	}
}
