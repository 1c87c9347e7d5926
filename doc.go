/*
go-objcount counts distinct objects in videos, still images and live camera
streams.  A YOLOv8 detector finds objects in each frame, a ByteTrack tracker
gives each physical object a track id that persists across frames, and each
track is counted once under the class it was labelled most often.

Runs produce an annotated output video or image, a JSON count record and
optionally a bar chart of the counts and an entry in a sqlite run history.

Detection runs on the CPU or a CUDA GPU through the OpenCV DNN module, or on
the Rockchip NPU when built with the rknn build tag.

See the CLI in the example/objcount subdirectory.
*/
package objcount
