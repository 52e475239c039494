package tdcontext

// AttrName is one of the closed set of attribute keys allowed on a
// span's attribute bag. Values are always stored as strings
// "for transport-level neutrality"; StartSpanOptions (span.go) takes
// them already serialized, so callers stringify richer Go values
// (JSON documents, etc.) themselves before starting a span.
type AttrName string

const (
	AttrName_                   AttrName = "NAME"
	AttrPackageName              AttrName = "PACKAGE_NAME"
	AttrSubmoduleName             AttrName = "SUBMODULE_NAME"
	AttrInstrumentationName       AttrName = "INSTRUMENTATION_NAME"
	AttrPackageType               AttrName = "PACKAGE_TYPE"
	AttrInputValue                AttrName = "INPUT_VALUE"
	AttrOutputValue               AttrName = "OUTPUT_VALUE"
	AttrInputSchemaMerges         AttrName = "INPUT_SCHEMA_MERGES"
	AttrOutputSchemaMerges        AttrName = "OUTPUT_SCHEMA_MERGES"
	AttrMetadata                  AttrName = "METADATA"
	AttrTransformMetadata         AttrName = "TRANSFORM_METADATA"
	AttrIsPreAppStart             AttrName = "IS_PRE_APP_START"
)

// PackageType enumerates the driver families a span can originate
// from: the closed list of drivers this SDK wires up.
type PackageType string

const (
	PackageHTTP       PackageType = "HTTP"
	PackagePostgres   PackageType = "PG"
	PackageMySQL      PackageType = "MYSQL"
	PackageGraphQL    PackageType = "GRAPHQL"
	PackageRedis      PackageType = "REDIS"
	PackageJWT        PackageType = "JWT"
	PackageJWKS       PackageType = "JWKS"
	PackageGRPC       PackageType = "GRPC"
	PackagePrisma     PackageType = "PRISMA"
	PackageFirestore  PackageType = "FIRESTORE"
	PackageNextJS     PackageType = "NEXTJS"
	PackageDate       PackageType = "DATE"
	PackageEnv        PackageType = "ENV"
)

// Kind is the span's role.
type Kind string

const (
	KindServer   Kind = "SERVER"
	KindClient   Kind = "CLIENT"
	KindInternal Kind = "INTERNAL"
)

// Status is OK or ERROR, with an optional message.
type Status struct {
	Error   bool
	Message string
}

// OKStatus is the default status of a span that has not errored.
var OKStatus = Status{}

// ErrorStatus builds an ERROR status carrying err's message.
func ErrorStatus(err error) Status {
	if err == nil {
		return OKStatus
	}
	return Status{Error: true, Message: err.Error()}
}
