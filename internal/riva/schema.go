package riva

import (
	"fmt"
	"strings"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

const (
	protoPackage = "nvidia.riva.asr"
	// streamingRecognizeMethod is the full gRPC method name.
	streamingRecognizeMethod = "/nvidia.riva.asr.RivaSpeechRecognition/StreamingRecognize"

	encodingLinearPCM = 1
)

// schema holds the subset of the Riva ASR messages this client exchanges,
// built at runtime so no generated package is needed. Field numbers match
// riva_asr.proto.
type schema struct {
	request        protoreflect.MessageDescriptor
	streamingCfg   protoreflect.MessageDescriptor
	recognitionCfg protoreflect.MessageDescriptor
	speechContext  protoreflect.MessageDescriptor
	response       protoreflect.MessageDescriptor
	result         protoreflect.MessageDescriptor
	alternative    protoreflect.MessageDescriptor
}

var (
	schemaOnce sync.Once
	schemaVal  *schema
	schemaErr  error
)

func loadSchema() (*schema, error) {
	schemaOnce.Do(func() {
		schemaVal, schemaErr = buildSchema()
	})
	return schemaVal, schemaErr
}

func field(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type, typeName string, repeated bool) *descriptorpb.FieldDescriptorProto {
	label := descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL
	if repeated {
		label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED
	}
	f := &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(name),
		JsonName: proto.String(jsonName(name)),
		Number:   proto.Int32(number),
		Label:    label.Enum(),
		Type:     typ.Enum(),
	}
	if typeName != "" {
		f.TypeName = proto.String("." + protoPackage + "." + typeName)
	}
	return f
}

func jsonName(name string) string {
	out := make([]byte, 0, len(name))
	upper := false
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '_' {
			upper = true
			continue
		}
		if upper && c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		upper = false
		out = append(out, c)
	}
	return string(out)
}

func message(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

func buildSchema() (*schema, error) {
	const (
		tBool    = descriptorpb.FieldDescriptorProto_TYPE_BOOL
		tInt32   = descriptorpb.FieldDescriptorProto_TYPE_INT32
		tFloat   = descriptorpb.FieldDescriptorProto_TYPE_FLOAT
		tString  = descriptorpb.FieldDescriptorProto_TYPE_STRING
		tBytes   = descriptorpb.FieldDescriptorProto_TYPE_BYTES
		tEnum    = descriptorpb.FieldDescriptorProto_TYPE_ENUM
		tMessage = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
	)

	fd := &descriptorpb.FileDescriptorProto{
		Name:    proto.String("riva/proto/riva_asr_stream.proto"),
		Package: proto.String(protoPackage),
		Syntax:  proto.String("proto3"),
		EnumType: []*descriptorpb.EnumDescriptorProto{{
			Name: proto.String("AudioEncoding"),
			Value: []*descriptorpb.EnumValueDescriptorProto{
				{Name: proto.String("ENCODING_UNSPECIFIED"), Number: proto.Int32(0)},
				{Name: proto.String("LINEAR_PCM"), Number: proto.Int32(encodingLinearPCM)},
			},
		}},
		MessageType: []*descriptorpb.DescriptorProto{
			message("SpeechContext",
				field("phrases", 1, tString, "", true),
				field("boost", 4, tFloat, "", false),
			),
			message("RecognitionConfig",
				field("encoding", 1, tEnum, "AudioEncoding", false),
				field("sample_rate_hertz", 2, tInt32, "", false),
				field("language_code", 3, tString, "", false),
				field("max_alternatives", 4, tInt32, "", false),
				field("speech_contexts", 6, tMessage, "SpeechContext", true),
				field("audio_channel_count", 7, tInt32, "", false),
				field("enable_automatic_punctuation", 11, tBool, "", false),
				field("model", 13, tString, "", false),
			),
			message("StreamingRecognitionConfig",
				field("config", 1, tMessage, "RecognitionConfig", false),
				field("interim_results", 2, tBool, "", false),
			),
			message("StreamingRecognizeRequest",
				field("streaming_config", 1, tMessage, "StreamingRecognitionConfig", false),
				field("audio_content", 2, tBytes, "", false),
			),
			message("SpeechRecognitionAlternative",
				field("transcript", 1, tString, "", false),
				field("confidence", 2, tFloat, "", false),
			),
			message("StreamingRecognitionResult",
				field("alternatives", 1, tMessage, "SpeechRecognitionAlternative", true),
				field("is_final", 2, tBool, "", false),
				field("stability", 3, tFloat, "", false),
			),
			message("StreamingRecognizeResponse",
				field("results", 1, tMessage, "StreamingRecognitionResult", true),
			),
		},
	}

	file, err := protodesc.NewFile(fd, nil)
	if err != nil {
		return nil, fmt.Errorf("build riva schema: %w", err)
	}
	msgs := file.Messages()
	return &schema{
		speechContext:  msgs.ByName("SpeechContext"),
		recognitionCfg: msgs.ByName("RecognitionConfig"),
		streamingCfg:   msgs.ByName("StreamingRecognitionConfig"),
		request:        msgs.ByName("StreamingRecognizeRequest"),
		alternative:    msgs.ByName("SpeechRecognitionAlternative"),
		result:         msgs.ByName("StreamingRecognitionResult"),
		response:       msgs.ByName("StreamingRecognizeResponse"),
	}, nil
}

func set(m *dynamicpb.Message, name protoreflect.Name, v protoreflect.Value) {
	m.Set(m.Descriptor().Fields().ByName(name), v)
}

func get(m protoreflect.Message, name protoreflect.Name) protoreflect.Value {
	return m.Get(m.Descriptor().Fields().ByName(name))
}

// configRequest builds the first StreamingRecognizeRequest of a stream.
func (s *schema) configRequest(cfg Config) *dynamicpb.Message {
	rc := dynamicpb.NewMessage(s.recognitionCfg)
	set(rc, "encoding", protoreflect.ValueOfEnum(encodingLinearPCM))
	set(rc, "sample_rate_hertz", protoreflect.ValueOfInt32(sampleRate))
	set(rc, "language_code", protoreflect.ValueOfString(cfg.LanguageCode))
	set(rc, "max_alternatives", protoreflect.ValueOfInt32(1))
	set(rc, "audio_channel_count", protoreflect.ValueOfInt32(1))
	set(rc, "enable_automatic_punctuation", protoreflect.ValueOfBool(cfg.AutomaticPunctuation))
	if cfg.Model != "" {
		set(rc, "model", protoreflect.ValueOfString(cfg.Model))
	}

	contexts := rc.Mutable(rc.Descriptor().Fields().ByName("speech_contexts")).List()
	for _, phrase := range cfg.SpeechPhrases {
		sc := dynamicpb.NewMessage(s.speechContext)
		phrases := sc.Mutable(sc.Descriptor().Fields().ByName("phrases")).List()
		phrases.Append(protoreflect.ValueOfString(phrase.Phrase))
		set(sc, "boost", protoreflect.ValueOfFloat32(phrase.Boost))
		contexts.Append(protoreflect.ValueOfMessage(sc))
	}

	sc := dynamicpb.NewMessage(s.streamingCfg)
	set(sc, "config", protoreflect.ValueOfMessage(rc))
	set(sc, "interim_results", protoreflect.ValueOfBool(true))

	req := dynamicpb.NewMessage(s.request)
	set(req, "streaming_config", protoreflect.ValueOfMessage(sc))
	return req
}

func (s *schema) audioRequest(pcm []byte) *dynamicpb.Message {
	req := dynamicpb.NewMessage(s.request)
	set(req, "audio_content", protoreflect.ValueOfBytes(pcm))
	return req
}

func (s *schema) newResponse() *dynamicpb.Message {
	return dynamicpb.NewMessage(s.response)
}

// result is one decoded StreamingRecognitionResult.
type result struct {
	Transcript string
	IsFinal    bool
}

func (s *schema) results(resp protoreflect.Message) []result {
	list := get(resp, "results").List()
	out := make([]result, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		r := list.Get(i).Message()
		alts := get(r, "alternatives").List()
		if alts.Len() == 0 {
			continue
		}
		// An empty final would overwrite the pending partial.
		transcript := get(alts.Get(0).Message(), "transcript").String()
		if strings.TrimSpace(transcript) == "" {
			continue
		}
		out = append(out, result{
			Transcript: transcript,
			IsFinal:    get(r, "is_final").Bool(),
		})
	}
	return out
}
